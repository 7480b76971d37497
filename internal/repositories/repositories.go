package repositories

import (
	"database/sql"
	"fmt"
)

// Preference keys stored in the preferences table.
const (
	PrefActiveList = "active_list_id"
)

// execAffecting runs query and fails when no row was touched.
func execAffecting(db *sql.DB, what, query string, args ...any) error {
	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", what, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not written", what)
	}
	return nil
}
