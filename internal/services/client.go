package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is where the todo API listens in development.
	DefaultBaseURL = "http://localhost:4322"
	// DefaultTimeout bounds every call, including the refresh round trip.
	DefaultTimeout = 7 * time.Second

	expiredDetail = "Token has expired"
	refreshPath   = "/api/users/refresh-token"
)

// ErrNotFound reports a missing list, item or user.
var ErrNotFound = errors.New("resource not found")

// Credentials is the client's view of the signed-in session. [state.State] implements it.
type Credentials interface {
	Current() models.Session
	Update(models.Session) error
	Clear() error
}

// APIError is a non-2xx response other than an expired token.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Detail)
}

// Is lets callers match any APIError against [shared.ErrAPIRequest], and a 404 against [ErrNotFound].
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

func (e *APIError) expired() bool {
	return e.StatusCode == http.StatusUnauthorized && e.Detail == expiredDetail
}

// ClientOpts configures a [Client]. Zero values select the defaults.
type ClientOpts struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials Credentials
	Timeout     time.Duration
	Logger      *log.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	timeout    time.Duration
	logger     *log.Logger
	refreshes  singleflight.Group
}

type memoryCredentials struct{ session models.Session }

func (m *memoryCredentials) Current() models.Session       { return m.session }
func (m *memoryCredentials) Update(s models.Session) error { m.session = s; return nil }
func (m *memoryCredentials) Clear() error                  { m.session = models.Session{}; return nil }

// NewClient creates a [Client]. Without Credentials it keeps the session in memory, which is only suitable for
// single-goroutine use such as tests and one-shot commands.
func NewClient(opts ClientOpts) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		creds:      opts.Credentials,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.creds == nil {
		c.creds = &memoryCredentials{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.logger = shared.WithLogger(c.logger, "component", "client")
	return c
}

// Session returns the session requests are currently signed with.
func (c *Client) Session() models.Session {
	return c.creds.Current()
}

// doRequest performs an authenticated call, refreshing and retrying once on an expired token.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}

	session := c.creds.Current()
	err := c.send(ctx, method, endpoint, payload, result, session)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.expired() {
		return err
	}

	c.logger.Debug("access token expired, refreshing", "method", method, "endpoint", endpoint)
	refreshed, err := c.refresh(ctx, session)
	if err != nil {
		return err
	}
	err = c.send(ctx, method, endpoint, payload, result, refreshed)
	if errors.As(err, &apiErr) && apiErr.expired() {
		return fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
	}
	return err
}

// send performs exactly one HTTP round trip.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, result any, session models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if session.Authenticated() {
		session.Token().SetAuthHeader(req)
	}

	requestID := shared.GenerateID()
	started := time.Now()
	c.logger.Debug("request", "request_id", requestID, "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if timedOut(ctx, err) {
			return fmt.Errorf("%w: %s %s after %s", shared.ErrTimeout, method, endpoint, c.timeout)
		}
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if timedOut(ctx, err) {
			return fmt.Errorf("%w: %s %s after %s", shared.ErrTimeout, method, endpoint, c.timeout)
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("response", "request_id", requestID, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}

	if result == nil {
		return nil
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// refresh exchanges the expired session for a new one.
//
// Callers holding the same expired token share one round trip. A caller whose token was already replaced by
// an earlier refresh gets the current session without another call. The round trip runs detached from ctx and is
// bounded only by the client timeout, so a caller that gives up neither aborts the refresh for the others nor
// clears the session.
func (c *Client) refresh(ctx context.Context, expired models.Session) (models.Session, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan(expired.AccessToken, func() (any, error) {
		return c.exchange(detached, expired)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Session{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight refresh")
		}
		return res.Val.(models.Session), nil
	case <-ctx.Done():
		return models.Session{}, fmt.Errorf("token refresh abandoned: %w", ctx.Err())
	}
}

// exchange performs the refresh round trip. Only a refresh the server could not honour clears the session.
func (c *Client) exchange(ctx context.Context, expired models.Session) (models.Session, error) {
	if current := c.creds.Current(); current.Authenticated() && current.AccessToken != expired.AccessToken {
		return current, nil
	}
	if expired.RefreshToken == "" {
		c.clearCredentials()
		return models.Session{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	body, err := json.Marshal(map[string]string{
		"accessToken":  expired.AccessToken,
		"refreshToken": expired.RefreshToken,
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	var auth models.Session
	if err := c.send(ctx, http.MethodPost, refreshPath, body, &auth, models.Session{}); err != nil {
		if !errors.Is(err, context.Canceled) {
			c.clearCredentials()
		}
		return models.Session{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if !auth.Authenticated() {
		c.clearCredentials()
		return models.Session{}, fmt.Errorf("%w: empty access token", shared.ErrRefreshFailed)
	}
	if err := c.creds.Update(auth); err != nil {
		c.logger.Warn("refreshed session not persisted", "err", err)
	}
	c.logger.Info("access token refreshed", "user", auth.Username)
	return auth, nil
}

func (c *Client) clearCredentials() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Warn("failed to clear session", "err", err)
	}
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// parseDetail extracts the "detail" field of an error body. Validation errors carry a non-string detail, which
// is returned as raw JSON. A body that is not JSON is returned as text.
func parseDetail(data []byte) string {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &errResp); err != nil || len(errResp.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}

	var detail string
	if err := json.Unmarshal(errResp.Detail, &detail); err == nil {
		return detail
	}
	return string(errResp.Detail)
}
