// Package state holds process-wide client state: the signed-in session and the last-active list.
//
// A [State] is created once at startup, loaded with [State.Init], injected into the remote store client as its
// credential source, and emptied with [State.Clear] on logout or when a token refresh fails.
package state

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/models"
)

// Store persists the state between runs. [repositories.SessionRepository] implements it.
type Store interface {
	LoadSession() (models.Session, error)
	SaveSession(models.Session) error
	ClearSession() error
	LoadActiveList() (int, error)
	SaveActiveList(id int) error
}

// State is safe for concurrent use; the token refresh path may update it while requests are in flight.
type State struct {
	mu         sync.RWMutex
	store      Store
	logger     *log.Logger
	session    models.Session
	activeList int
}

// New creates a [State] backed by store. A nil store keeps state in memory only.
func New(store Store, logger *log.Logger) *State {
	if logger == nil {
		logger = log.Default()
	}
	return &State{store: store, logger: logger}
}

// Init loads the persisted session and active list.
func (s *State) Init() error {
	if s.store == nil {
		return nil
	}

	session, err := s.store.LoadSession()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	active, err := s.store.LoadActiveList()
	if err != nil {
		s.logger.Warn("ignoring stored active list", "err", err)
		active = 0
	}

	s.mu.Lock()
	s.session = session
	s.activeList = active
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the session.
func (s *State) Current() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Update replaces the session and persists it.
func (s *State) Update(session models.Session) error {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSession(session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Clear drops the session and the active list, in memory and in the store.
func (s *State) Clear() error {
	s.mu.Lock()
	s.session = models.Session{}
	s.activeList = 0
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.ClearSession(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// ActiveList returns the last-active list id, 0 when none.
func (s *State) ActiveList() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeList
}

// SetActiveList records id as the last-active list; 0 clears it.
func (s *State) SetActiveList(id int) error {
	s.mu.Lock()
	s.activeList = id
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.SaveActiveList(id); err != nil {
		return fmt.Errorf("failed to persist active list: %w", err)
	}
	return nil
}
