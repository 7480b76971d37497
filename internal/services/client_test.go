package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/state"
	tu "github.com/desertthunder/tdx/internal/testing"
)

type fixture struct {
	api     *tu.FakeAPI
	creds   *state.State
	client  *Client
	user    models.User
	session models.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := tu.NewFakeAPI(t)
	user := api.AddUser("ada", "secret")
	session := api.SessionFor(user.ID)

	creds := state.New(nil, nil)
	if err := creds.Update(session); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	client := NewClient(ClientOpts{BaseURL: api.URL, Credentials: creds, Logger: log.New(io.Discard)})
	return &fixture{api: api, creds: creds, client: client, user: user, session: session}
}

func TestNewClient(t *testing.T) {
	c := NewClient(ClientOpts{})
	if c.baseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %s", c.baseURL)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", c.timeout)
	}
	if c.Session().Authenticated() {
		t.Error("expected no session")
	}

	trimmed := NewClient(ClientOpts{BaseURL: "http://example.test/"})
	if trimmed.baseURL != "http://example.test" {
		t.Errorf("expected trailing slash trimmed, got %s", trimmed.baseURL)
	}
}

func TestTokenRefresh(t *testing.T) {
	t.Run("refreshes once and retries", func(t *testing.T) {
		f := newFixture(t)
		f.api.AddList(f.user.ID, "groceries")
		f.api.Expire(f.session.AccessToken)

		lists, err := f.client.ListLists(context.Background())
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if len(lists) != 1 {
			t.Errorf("expected 1 list, got %d", len(lists))
		}
		if f.api.RefreshCalls() != 1 {
			t.Errorf("expected 1 refresh, got %d", f.api.RefreshCalls())
		}
		if f.api.Calls(http.MethodGet, "/api/todo-lists") != 2 {
			t.Errorf("expected original call plus one retry, got %d", f.api.Calls(http.MethodGet, "/api/todo-lists"))
		}
		if f.creds.Current().AccessToken == f.session.AccessToken {
			t.Error("expected credentials to hold the refreshed token")
		}
	})

	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		f := newFixture(t)
		f.api.Expire(f.session.AccessToken)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.client.ListLists(context.Background())
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if f.api.RefreshCalls() != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", f.api.RefreshCalls())
		}
	})

	t.Run("does not loop", func(t *testing.T) {
		f := newFixture(t)
		f.api.Expire(f.session.AccessToken)
		f.api.SetHook(func(r *http.Request) {
			if r.URL.Path == "/api/users/refresh-token" {
				return
			}
			// every token the server hands out is already expired
			if tok := r.Header.Get("Authorization"); len(tok) > 7 {
				f.api.Expire(tok[7:])
			}
		})

		_, err := f.client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if f.api.RefreshCalls() != 1 {
			t.Errorf("expected a single refresh, got %d", f.api.RefreshCalls())
		}
		if f.api.Calls(http.MethodGet, "/api/todo-lists") != 2 {
			t.Errorf("expected exactly 2 attempts, got %d", f.api.Calls(http.MethodGet, "/api/todo-lists"))
		}
	})

	t.Run("failed refresh clears session", func(t *testing.T) {
		f := newFixture(t)
		f.api.Expire(f.session.AccessToken)
		f.api.FailRefresh(true)

		_, err := f.client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
		if f.creds.Current().Authenticated() {
			t.Error("expected session to be cleared")
		}
	})

	t.Run("caller cancellation keeps the session", func(t *testing.T) {
		f := newFixture(t)
		f.api.Expire(f.session.AccessToken)
		entered, release := blockRefresh(t, f.api)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-entered
			cancel()
		}()

		_, err := f.client.ListLists(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("cancellation reported as a failed refresh: %v", err)
		}
		if !f.creds.Current().Authenticated() {
			t.Fatal("caller cancellation cleared the session")
		}

		release()
		tu.WaitFor(t, "detached refresh stored", func() bool {
			current := f.creds.Current()
			return current.Authenticated() && current.AccessToken != f.session.AccessToken
		})
	})

	t.Run("joined caller survives leader cancellation", func(t *testing.T) {
		f := newFixture(t)
		f.api.Expire(f.session.AccessToken)
		entered, release := blockRefresh(t, f.api)

		leaderCtx, cancelLeader := context.WithCancel(context.Background())
		leaderErr := make(chan error, 1)
		go func() {
			_, err := f.client.ListLists(leaderCtx)
			leaderErr <- err
		}()
		<-entered

		followerErr := make(chan error, 1)
		go func() {
			_, err := f.client.ListLists(context.Background())
			followerErr <- err
		}()
		tu.WaitFor(t, "follower hit the expired token", func() bool {
			return f.api.Calls(http.MethodGet, "/api/todo-lists") >= 2
		})

		cancelLeader()
		if err := <-leaderErr; !errors.Is(err, context.Canceled) {
			t.Errorf("expected leader to see context.Canceled, got %v", err)
		}

		release()
		if err := <-followerErr; err != nil {
			t.Fatalf("follower failed after leader cancellation: %v", err)
		}
		if f.api.RefreshCalls() != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", f.api.RefreshCalls())
		}
		if !f.creds.Current().Authenticated() {
			t.Error("expected refreshed session to be kept")
		}
	})

	t.Run("missing refresh token", func(t *testing.T) {
		f := newFixture(t)
		_ = f.creds.Update(models.Session{UserID: f.user.ID, AccessToken: f.session.AccessToken})
		f.api.Expire(f.session.AccessToken)

		_, err := f.client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
		if f.api.RefreshCalls() != 0 {
			t.Errorf("expected no refresh call, got %d", f.api.RefreshCalls())
		}
	})

	t.Run("other 401 is not refreshed", func(t *testing.T) {
		f := newFixture(t)
		_ = f.creds.Update(models.Session{AccessToken: "garbage", RefreshToken: "r"})

		_, err := f.client.ListLists(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 APIError, got %v", err)
		}
		if apiErr.Detail != "Invalid token" {
			t.Errorf("expected server detail, got %q", apiErr.Detail)
		}
		if f.api.RefreshCalls() != 0 {
			t.Errorf("expected no refresh, got %d", f.api.RefreshCalls())
		}
	})

	t.Run("forced refresh", func(t *testing.T) {
		f := newFixture(t)
		session, err := f.client.Refresh(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.AccessToken == f.session.AccessToken {
			t.Error("expected a new access token")
		}

		anon := NewClient(ClientOpts{BaseURL: f.api.URL})
		if _, err := anon.Refresh(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestRequestErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t)
		f.api.SetHook(func(*http.Request) { time.Sleep(200 * time.Millisecond) })
		client := NewClient(ClientOpts{BaseURL: f.api.URL, Credentials: f.creds, Timeout: 20 * time.Millisecond})

		_, err := client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("APIError matches sentinel", func(t *testing.T) {
		f := newFixture(t)
		f.api.ForceStatus(http.MethodGet, "/api/todo-lists", http.StatusInternalServerError)

		_, err := f.client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("a 500 must not match ErrNotFound")
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		rt := tu.NewMockRoundTripper(0, "", errors.New("connection refused"))
		client := NewClient(ClientOpts{HTTPClient: &http.Client{Transport: rt}})

		_, err := client.ListLists(context.Background())
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if rt.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", rt.Calls())
		}
	})

	t.Run("unreadable body", func(t *testing.T) {
		client := NewClient(ClientOpts{HTTPClient: &http.Client{Transport: tu.BodyRoundTripper{}}})
		if _, err := client.ListLists(context.Background()); err == nil {
			t.Error("expected read error")
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		rt := tu.NewMockRoundTripper(http.StatusOK, "{not json", nil)
		client := NewClient(ClientOpts{HTTPClient: &http.Client{Transport: rt}})
		if _, err := client.ListLists(context.Background()); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestParseDetail(t *testing.T) {
	tc := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Todo list not found"}`, "Todo list not found"},
		{"structured detail", `{"detail":[{"loc":["body","name"]}]}`, `[{"loc":["body","name"]}]`},
		{"plain text", "Internal Server Error\n", "Internal Server Error"},
		{"no detail field", `{"error":"x"}`, `{"error":"x"}`},
		{"empty", "", ""},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("parseDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	notFound := &APIError{StatusCode: http.StatusNotFound, Detail: "gone"}
	if !errors.Is(notFound, ErrNotFound) || !errors.Is(notFound, shared.ErrAPIRequest) {
		t.Error("expected 404 to match ErrNotFound and ErrAPIRequest")
	}
	if notFound.Error() != "API error (status 404): gone" {
		t.Errorf("unexpected message %q", notFound.Error())
	}
	if (&APIError{StatusCode: 502}).Error() != "API error: status 502" {
		t.Error("unexpected message without detail")
	}
	if !(&APIError{StatusCode: 401, Detail: "Token has expired"}).expired() {
		t.Error("expected expired token to be recognised")
	}
	if (&APIError{StatusCode: 403, Detail: "Token has expired"}).expired() {
		t.Error("only a 401 can be an expired token")
	}
}

// blockRefresh holds refresh requests until release is called. entered is closed when the first one arrives.
func blockRefresh(t *testing.T, api *tu.FakeAPI) (entered <-chan struct{}, release func()) {
	t.Helper()
	in := make(chan struct{})
	gate := make(chan struct{})
	var enterOnce, releaseOnce sync.Once

	api.SetHook(func(r *http.Request) {
		if r.URL.Path != "/api/users/refresh-token" {
			return
		}
		enterOnce.Do(func() { close(in) })
		<-gate
	})

	release = func() { releaseOnce.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return in, release
}
