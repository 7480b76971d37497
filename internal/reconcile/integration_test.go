package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/state"
	tu "github.com/desertthunder/tdx/internal/testing"
)

func openLive(t *testing.T, api *tu.FakeAPI, session models.Session, listID int) *View {
	t.Helper()
	creds := state.New(nil, nil)
	_ = creds.Update(session)
	logger := log.New(io.Discard)

	client := services.NewClient(services.ClientOpts{BaseURL: api.URL, Credentials: creds, Logger: logger})
	r := New(Options{
		Store:   client,
		Session: creds,
		Dial:    LiveDialer(live.Options{URL: api.WSURL(), Logger: logger}),
		Logger:  logger,
	})

	v, err := r.Open(context.Background(), listID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestCollaboration(t *testing.T) {
	api := tu.NewFakeAPI(t)
	ada := api.AddUser("ada", "pw")
	bob := api.AddUser("bob", "pw")
	list := api.AddList(ada.ID, "shared")
	api.AddMember(list.ID, bob.ID, models.RoleEditor)
	milk := api.AddItem(list.ID, ada.ID, "milk")

	adaView := openLive(t, api, api.SessionFor(ada.ID), list.ID)
	tu.WaitFor(t, "ada connected", func() bool { return api.Connected(list.ID) == 1 })
	bobView := openLive(t, api, api.SessionFor(bob.ID), list.ID)
	tu.WaitFor(t, "bob connected", func() bool { return api.Connected(list.ID) == 2 })

	present := func(v *View, userID int) bool {
		members := v.Snapshot().List.Members
		i := models.FindMember(members, userID)
		return i >= 0 && members[i].Active
	}
	tu.WaitFor(t, "bob sees ada", func() bool { return present(bobView, ada.ID) })
	tu.WaitFor(t, "ada sees bob", func() bool { return present(adaView, bob.ID) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := adaView.Create(ctx, "eggs")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tu.WaitFor(t, "bob sees the new item", func() bool {
		return models.FindItem(bobView.Snapshot().List.Items, created.ID) >= 0
	})

	if err := bobView.RequestEdit(milk.ID); err != nil {
		t.Fatalf("request edit: %v", err)
	}
	_ = bobView.SetDraft(milk.ID, "oat milk")
	tu.WaitFor(t, "ada sees the live draft", func() bool {
		o := adaView.Snapshot().Overlay(milk.ID)
		return o.State == RemotelyEditing && o.Description == "oat milk"
	})

	if err := bobView.SubmitEdit(ctx, milk.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	tu.WaitFor(t, "ada sees the commit", func() bool {
		snap := adaView.Snapshot()
		i := models.FindItem(snap.List.Items, milk.ID)
		return i >= 0 && snap.List.Items[i].Description == "oat milk" && snap.Overlay(milk.ID).State == Viewing
	})

	if err := adaView.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tu.WaitFor(t, "bob sees the delete", func() bool {
		return models.FindItem(bobView.Snapshot().List.Items, created.ID) < 0
	})

	if err := bobView.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	tu.WaitFor(t, "ada sees bob leave", func() bool { return !present(adaView, bob.ID) })
}

func TestOwnerOnlyListStaysOffline(t *testing.T) {
	api := tu.NewFakeAPI(t)
	ada := api.AddUser("ada", "pw")
	list := api.AddList(ada.ID, "private")

	v := openLive(t, api, api.SessionFor(ada.ID), list.ID)
	if v.Snapshot().Live || api.Connected(list.ID) != 0 {
		t.Error("expected no channel for an owner-only list")
	}
}

func TestOpenFailureKeepsSession(t *testing.T) {
	api := tu.NewFakeAPI(t)
	ada := api.AddUser("ada", "pw")
	list := api.AddList(ada.ID, "groceries")
	session := api.SessionFor(ada.ID)
	api.Expire(session.AccessToken)
	api.ForceStatus(http.MethodGet, fmt.Sprintf("/api/todo-lists/%d", list.ID), http.StatusNotFound)
	api.SetHook(func(r *http.Request) {
		if r.URL.Path == "/api/users/refresh-token" {
			time.Sleep(100 * time.Millisecond)
		}
	})

	creds := state.New(nil, nil)
	_ = creds.Update(session)
	logger := log.New(io.Discard)
	client := services.NewClient(services.ClientOpts{BaseURL: api.URL, Credentials: creds, Logger: logger})
	r := New(Options{Store: client, Session: creds, Logger: logger})

	_, err := r.Open(context.Background(), list.ID)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from the failed load, got %v", err)
	}
	if !creds.Current().Authenticated() {
		t.Fatal("a sibling fetch failing mid-refresh cleared the session")
	}
	tu.WaitFor(t, "refresh finished in the background", func() bool {
		current := creds.Current()
		return current.Authenticated() && current.AccessToken != session.AccessToken
	})
}

func TestReconnectAfterRefresh(t *testing.T) {
	api := tu.NewFakeAPI(t)
	ada := api.AddUser("ada", "pw")
	bob := api.AddUser("bob", "pw")
	list := api.AddList(ada.ID, "shared")
	api.AddMember(list.ID, bob.ID, models.RoleEditor)
	session := api.SessionFor(ada.ID)

	creds := state.New(nil, nil)
	_ = creds.Update(session)
	logger := log.New(io.Discard)
	client := services.NewClient(services.ClientOpts{BaseURL: api.URL, Credentials: creds, Logger: logger})
	r := New(Options{
		Store:   client,
		Session: creds,
		Dial: LiveDialer(live.Options{
			URL:               api.WSURL(),
			Logger:            logger,
			ReconnectAttempts: 5,
			ReconnectBase:     20 * time.Millisecond,
			ReconnectMax:      40 * time.Millisecond,
		}),
		Logger: logger,
	})
	v, err := r.Open(context.Background(), list.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	tu.WaitFor(t, "ada connected", func() bool { return api.Connected(list.ID) == 1 })

	if _, err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	api.Expire(session.AccessToken)
	api.Kick(list.ID)

	handshake := fmt.Sprintf("/ws/todo-list/%d", list.ID)
	tu.WaitFor(t, "reconnected with the refreshed token", func() bool {
		return api.Calls(http.MethodGet, handshake) >= 2 && api.Connected(list.ID) == 1
	})
}
