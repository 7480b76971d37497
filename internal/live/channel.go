package live

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	DefaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Options configures [Dial].
type Options struct {
	// URL is the websocket base, e.g. ws://localhost:4322/ws.
	URL         string
	ListID      int
	AccessToken string
	// Token, when set, is called for the access token of every handshake instead of reading AccessToken, so a
	// reconnect after a token refresh presents the new token.
	Token  func(ctx context.Context) string
	Logger *log.Logger
	Dialer *websocket.Dialer
	Buffer int

	ReconnectAttempts int
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
}

// Endpoint builds the channel URL for a list.
func Endpoint(base string, listID int, accessToken string) string {
	return fmt.Sprintf("%s/todo-list/%d?%s",
		strings.TrimRight(base, "/"), listID, url.Values{"access_token": {accessToken}}.Encode())
}

// Channel is a live connection for one list. Send and Close are safe for concurrent use.
type Channel struct {
	opts   Options
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial connects to the channel of opts.ListID. A failed first dial wraps [shared.ErrChannelUnavailable] and is
// never retried.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = opts.ReconnectBase
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Channel{
		opts:   opts,
		logger: shared.WithLogger(logger, "component", "live", "list_id", opts.ListID),
		events: make(chan Event, opts.Buffer),
		done:   make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.run(conn)
	c.logger.Debug("channel open")
	return c, nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.opts.AccessToken
	if c.opts.Token != nil {
		token = c.opts.Token(ctx)
	}
	endpoint := Endpoint(c.opts.URL, c.opts.ListID, token)
	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake status %d: %v", shared.ErrChannelUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrChannelUnavailable, err)
	}
	return conn, nil
}

// Events delivers parsed inbound events. It is closed once the channel stops for good.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Done is closed when the read loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Send writes one outbound event.
func (c *Channel) Send(e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return fmt.Errorf("%w: channel closed", shared.ErrChannelUnavailable)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrChannelUnavailable, err)
	}
	c.logger.Debug("sent", "action", e.Action())
	return nil
}

// Close shuts the connection and waits for the read loop. Calling it again is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.cancel()
	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	c.mu.Unlock()

	<-c.done
	c.logger.Debug("channel closed")
	return err
}

func (c *Channel) run(conn *websocket.Conn) {
	defer close(c.done)
	defer close(c.events)

	for {
		c.read(conn)

		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

// read pumps frames from conn until it fails.
func (c *Channel) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("connection lost", "err", err)
			}
			return
		}

		e, err := Parse(data)
		if err != nil {
			c.logger.Debug("dropping frame", "err", err)
			continue
		}

		select {
		case c.events <- e:
		default:
			c.logger.Warn("event buffer full, dropping", "action", e.Action())
		}
	}
}

// reconnect redials with doubling delays. It returns nil once the channel is closed or the attempts run out.
func (c *Channel) reconnect() *websocket.Conn {
	delay := c.opts.ReconnectBase
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "err", err)
			delay = min(delay*2, c.opts.ReconnectMax)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("reconnected", "attempt", attempt)
		return conn
	}

	if c.ctx.Err() == nil {
		c.logger.Warn("channel unavailable, continuing without live updates")
	}
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	return nil
}
