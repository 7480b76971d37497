package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tdx/internal/live"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

var (
	owner  = models.User{ID: 1, Username: "ada"}
	editor = models.User{ID: 2, Username: "bob"}
)

type fakeStore struct {
	mu        sync.Mutex
	list      models.List
	members   []models.Member
	items     []models.Item
	nextID    int
	getCalls  map[int]int
	gate      chan struct{}
	updateErr error
}

func newFakeStore(items ...models.Item) *fakeStore {
	return &fakeStore{
		list:     models.List{ID: 1, Name: "groceries", Author: owner, Role: models.RoleOwner},
		members:  []models.Member{{User: editor, Role: models.Role{ID: 2, Name: models.RoleEditor}}},
		items:    items,
		nextID:   100,
		getCalls: make(map[int]int),
	}
}

func item(id int, description string) models.Item {
	return models.Item{ID: id, ListID: 1, AuthorID: owner.ID, Description: description}
}

func (s *fakeStore) GetList(_ context.Context, id int) (*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.list.ID {
		return nil, services.ErrNotFound
	}
	l := s.list
	return &l, nil
}

func (s *fakeStore) ListMembers(context.Context, int) ([]models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.members), nil
}

func (s *fakeStore) ListItems(context.Context, int) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), nil
}

// GetItem blocks on gate when one is set, ignoring cancellation so a result can land after teardown.
func (s *fakeStore) GetItem(_ context.Context, _ int, itemID int) (*models.Item, error) {
	s.mu.Lock()
	s.getCalls[itemID]++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := models.FindItem(s.items, itemID); i >= 0 {
		it := s.items[i]
		return &it, nil
	}
	return nil, services.ErrNotFound
}

func (s *fakeStore) CreateItem(_ context.Context, listID int, description string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	it := models.Item{ID: s.nextID, ListID: listID, AuthorID: owner.ID, Description: description}
	s.items = append(s.items, it)
	return &it, nil
}

func (s *fakeStore) UpdateItem(_ context.Context, _ int, itemID int, update models.ItemUpdate) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	i := models.FindItem(s.items, itemID)
	if i < 0 {
		return nil, &services.APIError{StatusCode: 404, Detail: "Todo item not found"}
	}
	if update.Completed != nil {
		s.items[i].Completed = *update.Completed
	}
	if update.Description != nil {
		s.items[i].Description = *update.Description
	}
	it := s.items[i]
	return &it, nil
}

func (s *fakeStore) DeleteItem(_ context.Context, _ int, itemID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if models.FindItem(s.items, itemID) < 0 {
		return fmt.Errorf("%w: item %d", services.ErrNotFound, itemID)
	}
	s.items = slices.DeleteFunc(s.items, func(it models.Item) bool { return it.ID == itemID })
	return nil
}

func (s *fakeStore) CloneItem(_ context.Context, _ int, itemID int) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := models.FindItem(s.items, itemID)
	if i < 0 {
		return nil, services.ErrNotFound
	}
	s.nextID++
	it := s.items[i]
	it.ID = s.nextID
	s.items = append(s.items, it)
	return &it, nil
}

func (s *fakeStore) set(it models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := models.FindItem(s.items, it.ID); i >= 0 {
		s.items[i] = it
		return
	}
	s.items = append(s.items, it)
}

func (s *fakeStore) drop(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(it models.Item) bool { return it.ID == id })
}

func (s *fakeStore) calls(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []live.Event
	events chan live.Event
	once   sync.Once
	closed bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(chan live.Event, 16)}
}

func (n *fakeNotifier) Send(e live.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return shared.ErrChannelUnavailable
	}
	n.sent = append(n.sent, e)
	return nil
}

func (n *fakeNotifier) Events() <-chan live.Event { return n.events }

func (n *fakeNotifier) Close() error {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()
		close(n.events)
	})
	return nil
}

func (n *fakeNotifier) Sent() []live.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

type staticSession models.Session

func (s staticSession) Current() models.Session { return models.Session(s) }

type dialRecorder struct {
	notifier *fakeNotifier
	err      error
	calls    int
	listID   int
	token    string
}

func (d *dialRecorder) dial(ctx context.Context, listID int, token func(context.Context) string) (Notifier, error) {
	d.calls++
	d.listID, d.token = listID, token(ctx)
	if d.err != nil {
		return nil, d.err
	}
	return d.notifier, nil
}

var errBoom = errors.New("boom")

// refreshingStore is a fakeStore that can also exchange its session.
type refreshingStore struct {
	*fakeStore
	next  models.Session
	err   error
	calls int
}

func (s *refreshingStore) Refresh(context.Context) (models.Session, error) {
	s.calls++
	if s.err != nil {
		return models.Session{}, s.err
	}
	return s.next, nil
}

// expiredToken signs a token whose exp claim has passed.
func expiredToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  owner.ID,
		"username": owner.Username,
		"exp":      time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}
