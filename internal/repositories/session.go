package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/tdx/internal/models"
)

// SessionRepository persists the session row and user preferences.
//
// It satisfies [state.Store].
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// LoadSession returns the stored session, or a zero session when none is stored.
func (r *SessionRepository) LoadSession() (models.Session, error) {
	query := `SELECT user_id, username, access_token, refresh_token FROM session WHERE id = 1`

	var s models.Session
	err := r.db.QueryRow(query).Scan(&s.UserID, &s.Username, &s.AccessToken, &s.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, nil
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// SaveSession replaces the stored session.
func (r *SessionRepository) SaveSession(s models.Session) error {
	query := `
		INSERT INTO session (id, user_id, username, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`
	return execAffecting(r.db, "session", query, s.UserID, s.Username, s.AccessToken, s.RefreshToken, time.Now())
}

// ClearSession removes the stored session and the active list selection.
func (r *SessionRepository) ClearSession() error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM preferences WHERE key = ?`, PrefActiveList); err != nil {
		return fmt.Errorf("failed to delete active list: %w", err)
	}

	return tx.Commit()
}

// LoadActiveList returns the last-active list id, or 0 when none is stored.
func (r *SessionRepository) LoadActiveList() (int, error) {
	value, err := r.preference(PrefActiveList)
	if err != nil || value == "" {
		return 0, err
	}

	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s preference %q: %w", PrefActiveList, value, err)
	}
	return id, nil
}

// SaveActiveList stores the last-active list id; 0 clears it.
func (r *SessionRepository) SaveActiveList(id int) error {
	if id == 0 {
		if _, err := r.db.Exec(`DELETE FROM preferences WHERE key = ?`, PrefActiveList); err != nil {
			return fmt.Errorf("failed to clear active list: %w", err)
		}
		return nil
	}
	return r.setPreference(PrefActiveList, strconv.Itoa(id))
}

func (r *SessionRepository) preference(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query preference %s: %w", key, err)
	}
	return value, nil
}

func (r *SessionRepository) setPreference(key, value string) error {
	query := `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	return execAffecting(r.db, "preference "+key, query, key, value, time.Now())
}
