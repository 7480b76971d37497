// Package repositories implements SQLite persistence for client state that survives restarts.
//
// Key Implementations:
//   - [SessionRepository] : the signed-in [models.Session] (a single row) and the last-active list selection
//
// The remote service owns every list and item; nothing here caches server entities.
package repositories
