package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Store is the subset of [services.Client] a view needs.
type Store interface {
	GetList(ctx context.Context, id int) (*models.List, error)
	ListMembers(ctx context.Context, id int) ([]models.Member, error)
	ListItems(ctx context.Context, listID int) ([]models.Item, error)
	GetItem(ctx context.Context, listID, itemID int) (*models.Item, error)
	CreateItem(ctx context.Context, listID int, description string) (*models.Item, error)
	UpdateItem(ctx context.Context, listID, itemID int, update models.ItemUpdate) (*models.Item, error)
	DeleteItem(ctx context.Context, listID, itemID int) error
	CloneItem(ctx context.Context, listID, itemID int) (*models.Item, error)
}

// Notifier is a live channel. [live.Channel] implements it.
type Notifier interface {
	Send(live.Event) error
	Events() <-chan live.Event
	Close() error
}

// Dialer opens the live channel of a list. token is called for the access token of every handshake, the
// reconnects included.
type Dialer func(ctx context.Context, listID int, token func(context.Context) string) (Notifier, error)

// Session supplies the viewer's identity and access token.
type Session interface {
	Current() models.Session
}

// Refresher exchanges the refresh token for a new session. A [Store] that also implements it, as
// [services.Client] does, gets asked for a new token before a handshake would present an expired one.
type Refresher interface {
	Refresh(ctx context.Context) (models.Session, error)
}

// EditState is an item's position in the edit state machine.
type EditState int

const (
	Viewing EditState = iota
	LocallyEditing
	RemotelyEditing
)

func (s EditState) String() string {
	switch s {
	case LocallyEditing:
		return "locally editing"
	case RemotelyEditing:
		return "remotely editing"
	default:
		return "viewing"
	}
}

// Overlay is the transient edit state of one item. Viewing items have no overlay.
type Overlay struct {
	State       EditState
	Description string
}

// Snapshot is a deep copy of a view's projection.
//
// Overlays show the edit event observed last for each item. Drafts hold the local edits that are open, which
// stay open and submittable while a collaborator's overlay is shown on top of them.
type Snapshot struct {
	List     models.List
	Overlays map[int]Overlay
	Drafts   map[int]string
	Live     bool
	Closed   bool
}

// Overlay returns the overlay of itemID, with State Viewing when there is none.
func (s Snapshot) Overlay(itemID int) Overlay {
	return s.Overlays[itemID]
}

// Editing reports whether a local edit of itemID is open.
func (s Snapshot) Editing(itemID int) bool {
	_, ok := s.Drafts[itemID]
	return ok
}

// Options configures a [Reconciler].
type Options struct {
	Store   Store
	Session Session
	// Dial may be nil, in which case no view is live.
	Dial   Dialer
	Logger *log.Logger
	// EditRate bounds outbound live-typing frames per second. Zero disables the limit.
	EditRate  float64
	EditBurst int
}

// LiveDialer returns a [Dialer] that opens a [live.Channel] with base as the template for every list.
func LiveDialer(base live.Options) Dialer {
	return func(ctx context.Context, listID int, token func(context.Context) string) (Notifier, error) {
		opts := base
		opts.ListID = listID
		opts.Token = token
		c, err := live.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Reconciler opens list views that share one store, session and dialer.
type Reconciler struct {
	opts   Options
	logger *log.Logger
}

// New creates a [Reconciler].
func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.EditBurst <= 0 {
		opts.EditBurst = 1
	}
	return &Reconciler{opts: opts, logger: shared.WithLogger(logger, "component", "reconcile")}
}

// Open loads a list with its members and items, and dials its channel when anyone besides the owner is a member.
//
// A failed dial is logged and the view stays usable without live updates.
func (r *Reconciler) Open(ctx context.Context, listID int) (*View, error) {
	var (
		list    *models.List
		members []models.Member
		items   []models.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		list, err = r.opts.Store.GetList(gctx, listID)
		return err
	})
	g.Go(func() (err error) {
		members, err = r.opts.Store.ListMembers(gctx, listID)
		return err
	})
	g.Go(func() (err error) {
		items, err = r.opts.Store.ListItems(gctx, listID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load list %d: %w", listID, err)
	}

	var session models.Session
	if r.opts.Session != nil {
		session = r.opts.Session.Current()
	}

	limit := rate.Inf
	if r.opts.EditRate > 0 {
		limit = rate.Limit(r.opts.EditRate)
	}

	vctx, cancel := context.WithCancel(context.Background())
	v := &View{
		store:      r.opts.Store,
		logger:     shared.WithLogger(r.logger, "list_id", listID),
		listID:     listID,
		viewer:     session.UserID,
		limiter:    rate.NewLimiter(limit, r.opts.EditBurst),
		ctx:        vctx,
		cancel:     cancel,
		overlays:   make(map[int]Overlay),
		drafts:     make(map[int]string),
		tombstones: make(map[int]struct{}),
		changes:    make(chan struct{}, 1),
		pumpDone:   make(chan struct{}),
	}
	v.settled = sync.NewCond(&v.mu)

	v.list = *list
	v.list.Members = models.EffectiveMembers(list.Author, members)
	v.list.Items = items
	if v.list.Items == nil {
		v.list.Items = []models.Item{}
	}

	if r.opts.Dial != nil && models.IsShared(v.list.Author, v.list.Members) {
		n, err := r.opts.Dial(ctx, listID, r.accessToken)
		if err != nil {
			v.logger.Warn("live updates unavailable", "err", err)
		} else {
			v.notifier = n
			v.live = true
		}
	}

	if v.notifier != nil {
		go v.pump(v.notifier)
	} else {
		close(v.pumpDone)
	}
	return v, nil
}

// accessToken reads the session's token for a channel handshake. The handshake has no way to report an expired
// token, so one whose exp claim has passed is refreshed first when the store can do that.
func (r *Reconciler) accessToken(ctx context.Context) string {
	if r.opts.Session == nil {
		return ""
	}
	session := r.opts.Session.Current()
	if !session.Authenticated() || session.Token().Valid() {
		return session.AccessToken
	}

	refresher, ok := r.opts.Store.(Refresher)
	if !ok {
		return session.AccessToken
	}
	refreshed, err := refresher.Refresh(ctx)
	if err != nil {
		r.logger.Warn("token refresh before handshake failed", "err", err)
		return session.AccessToken
	}
	return refreshed.AccessToken
}

// View is the live projection of one list. All methods are safe for concurrent use.
type View struct {
	store   Store
	logger  *log.Logger
	listID  int
	viewer  int
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	list       models.List
	overlays   map[int]Overlay
	drafts     map[int]string
	tombstones map[int]struct{}
	notifier   Notifier
	live       bool
	closed     bool
	pending    int
	settled    *sync.Cond

	changes  chan struct{}
	pumpDone chan struct{}
}

// ListID returns the id of the viewed list.
func (v *View) ListID() int { return v.listID }

// Changes receives a signal after every change to the projection. Signals coalesce; read [View.Snapshot] after
// each one. The channel is closed by [View.Close].
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

// notify signals a change without blocking. Callers hold mu.
func (v *View) notify() {
	if v.closed {
		return
	}
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns a deep copy of the projection.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	return Snapshot{
		List:     v.list.Clone(),
		Overlays: maps.Clone(v.overlays),
		Drafts:   maps.Clone(v.drafts),
		Live:     v.live,
		Closed:   v.closed,
	}
}

// EditState returns the state of itemID.
func (v *View) EditState(itemID int) EditState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlays[itemID].State
}

// Settle blocks until every fetch started by a notification has been applied or discarded.
func (v *View) Settle() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.pending > 0 {
		v.settled.Wait()
	}
}

// Close closes the channel and clears the projection. Results that arrive afterwards are discarded.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.live = false
	v.cancel()
	n := v.notifier
	v.list = models.List{}
	v.overlays = make(map[int]Overlay)
	v.drafts = make(map[int]string)
	v.mu.Unlock()

	var err error
	if n != nil {
		err = n.Close()
	}
	<-v.pumpDone
	close(v.changes)
	v.logger.Debug("view closed")
	return err
}

func (v *View) pump(n Notifier) {
	defer close(v.pumpDone)
	for e := range n.Events() {
		err := v.Handle(e)
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrViewClosed):
			return
		default:
			v.logger.Debug("notification dropped", "action", e.Action(), "err", err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.logger.Warn("live channel ended, view is no longer live")
		v.live = false
		v.notify()
	}
}

// broadcast sends e on the channel, if any. Failures are logged only.
func (v *View) broadcast(n Notifier, e live.Event) {
	if n == nil {
		return
	}
	if err := n.Send(e); err != nil {
		v.logger.Warn("broadcast failed", "action", e.Action(), "err", err)
	}
}

func (v *View) tombstoned(itemID int) bool {
	_, ok := v.tombstones[itemID]
	return ok
}

// remove drops itemID from the items and overlays and remembers it as deleted. Callers hold mu.
func (v *View) remove(itemID int) {
	v.tombstones[itemID] = struct{}{}
	delete(v.overlays, itemID)
	delete(v.drafts, itemID)
	v.list.Items = filterItems(v.list.Items, itemID)
}

// upsert replaces the item with the same id, or appends it. Callers hold mu.
func (v *View) upsert(item models.Item) {
	if v.tombstoned(item.ID) {
		return
	}
	if i := models.FindItem(v.list.Items, item.ID); i >= 0 {
		v.list.Items[i] = item
		return
	}
	v.list.Items = append(v.list.Items, item)
}

// replace swaps in item only if it is already present. Callers hold mu.
func (v *View) replace(item models.Item) bool {
	if v.tombstoned(item.ID) {
		return false
	}
	if i := models.FindItem(v.list.Items, item.ID); i >= 0 {
		v.list.Items[i] = item
		return true
	}
	return false
}

func filterItems(items []models.Item, itemID int) []models.Item {
	out := items[:0:0]
	for _, it := range items {
		if it.ID != itemID {
			out = append(out, it)
		}
	}
	return out
}

// fetch resolves itemID in the background and hands the result to apply under mu. Callers hold mu.
func (v *View) fetch(itemID int, apply func(item *models.Item, err error)) {
	v.pending++
	go func() {
		item, err := v.store.GetItem(v.ctx, v.listID, itemID)

		v.mu.Lock()
		defer v.mu.Unlock()
		defer func() {
			v.pending--
			if v.pending == 0 {
				v.settled.Broadcast()
			}
		}()

		if v.closed {
			return
		}
		apply(item, err)
		v.notify()
	}()
}

func isNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}

func trimDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: description is required", shared.ErrInvalidInput)
	}
	return s, nil
}
