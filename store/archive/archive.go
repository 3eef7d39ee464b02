// Package archive implements the best-effort archival sink for evicted
// transcript tails. Snapshots land in a local sqlite database keyed by
// session id; a session is archived at most once.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/hrygo/expertpanel/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_archive (
	session_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	archived_ts BIGINT NOT NULL
);
`

// SQLite archives session snapshots into a local database file.
type SQLite struct {
	db *sql.DB

	mu       sync.Mutex
	archived map[string]bool
}

// NewSQLite opens (and initializes) the archive database at dsn.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive database %s", dsn)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize archive schema")
	}
	return &SQLite{
		db:       db,
		archived: make(map[string]bool),
	}, nil
}

type snapshot struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	PanelPresetKey string          `json:"panelPresetKey,omitempty"`
	Moderator      string          `json:"moderator"`
	Experts        []expertRef     `json:"experts"`
	History        []store.Message `json:"history"`
	ArchivedAt     string          `json:"archivedAt"`
}

type expertRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Archive writes a snapshot of the session once. Subsequent calls for the
// same session id are no-ops, both via the in-process set and the INSERT OR
// IGNORE on the primary key.
func (a *SQLite) Archive(ctx context.Context, session *store.Session) error {
	a.mu.Lock()
	if a.archived[session.ID] {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	experts := make([]expertRef, 0, len(session.Experts))
	for _, e := range session.Experts {
		experts = append(experts, expertRef{ID: e.ID, Name: e.Name})
	}
	payload, err := json.Marshal(snapshot{
		ID:             session.ID,
		Title:          session.Title,
		PanelPresetKey: session.PanelPresetKey,
		Moderator:      session.Moderator.Name,
		Experts:        experts,
		History:        session.Transcript,
		ArchivedAt:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	_, err = a.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO session_archive (session_id, payload, archived_ts) VALUES (?, ?, ?)",
		session.ID, string(payload), time.Now().Unix())
	if err != nil {
		return errors.Wrap(err, "insert snapshot")
	}

	a.mu.Lock()
	a.archived[session.ID] = true
	a.mu.Unlock()
	return nil
}

func (a *SQLite) Close() error {
	return a.db.Close()
}

// Noop discards snapshots. Used when no archive DSN is configured.
type Noop struct{}

func (Noop) Archive(context.Context, *store.Session) error { return nil }
func (Noop) Close() error                                  { return nil }
