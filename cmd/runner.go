package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/reconcile"
	"github.com/desertthunder/tdx/internal/repositories"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/state"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, session state, store client and reconciler are created on first use so commands such as
// `setup config` work before a database exists.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      *bufio.Reader

	db         *sql.DB
	state      *state.State
	client     *services.Client
	reconciler *reconcile.Reconciler
}

// RunnerOpts contains configuration options for creating a Runner.
//
// State is optional; when nil the Runner opens the configured sqlite database.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	State      *state.State
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      bufio.NewReader(opts.Input),
		state:      opts.State,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, listsCommand, itemsCommand, usersCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the Runner and everything it creates afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// session loads the persisted client state, opening the database when no state was injected.
func (r *Runner) session() (*state.State, error) {
	if r.state != nil {
		return r.state, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := state.New(repositories.NewSessionRepository(db), shared.WithLogger(r.logger, "component", "state"))
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}

	r.db = db
	r.state = s
	return s, nil
}

// backend returns the store client and reconciler, creating them on first use.
func (r *Runner) backend() (*services.Client, *reconcile.Reconciler, error) {
	if r.client != nil {
		return r.client, r.reconciler, nil
	}

	s, err := r.session()
	if err != nil {
		return nil, nil, err
	}

	r.client = services.NewClient(services.ClientOpts{
		BaseURL:     r.config.API.BaseURL,
		HTTPClient:  r.httpClient,
		Credentials: s,
		Timeout:     r.config.API.Timeout(),
		Logger:      r.logger,
	})

	var dial reconcile.Dialer
	if r.config.Live.Enabled {
		dial = reconcile.LiveDialer(live.Options{
			URL:               r.config.API.WSURL,
			Logger:            r.logger,
			ReconnectAttempts: r.config.Live.ReconnectAttempts,
			ReconnectBase:     r.config.Live.ReconnectBase(),
			ReconnectMax:      r.config.Live.ReconnectMax(),
		})
	}

	r.reconciler = reconcile.New(reconcile.Options{
		Store:     r.client,
		Session:   s,
		Dial:      dial,
		Logger:    r.logger,
		EditRate:  r.config.Live.EditRate,
		EditBurst: r.config.Live.EditBurst,
	})
	return r.client, r.reconciler, nil
}

// authed returns the store client after checking that someone is signed in.
func (r *Runner) authed() (*services.Client, error) {
	client, _, err := r.backend()
	if err != nil {
		return nil, err
	}
	if !client.Session().Authenticated() {
		return nil, fmt.Errorf("%w: run 'tdx auth login' first", shared.ErrNotAuthenticated)
	}
	return client, nil
}

// listID reads the list id argument, falling back to the active list.
func (r *Runner) listID(cmd *cli.Command, name string) (int, error) {
	if raw := cmd.StringArg(name); raw != "" {
		return parseID(name, raw)
	}
	if raw := cmd.String("list"); raw != "" {
		return parseID("list", raw)
	}

	s, err := r.session()
	if err != nil {
		return 0, err
	}
	if id := s.ActiveList(); id > 0 {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s (or select one with 'tdx lists use')", shared.ErrMissingArgument, name)
}

func parseID(name, raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", shared.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	value := strings.TrimSpace(cmd.StringArg(name))
	if value == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return value, nil
}

// prompt writes label and reads one line from the Runner's input.
func (r *Runner) prompt(label string) (string, error) {
	r.writePlain("%s: ", label)
	line, err := r.input.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
