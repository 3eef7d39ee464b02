package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a session does not exist. Against the external
// backend a record may be briefly invisible to a differently-routed reader
// right after creation; callers retry with bounded backoff before treating
// this as fatal.
var ErrNotFound = errors.New("session not found")

// Driver is the interface a session store backend implements.
type Driver interface {
	// Kind reports the backend capability for diagnostics ("memory", "redis").
	Kind() string

	CreateSession(ctx context.Context, session *Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, session *Session, ttl time.Duration) error

	Close() error
}

// Archiver receives evicted transcript tails, best-effort.
type Archiver interface {
	// Archive persists a snapshot keyed by session id. Implementations are
	// idempotent: a session is archived at most once.
	Archive(ctx context.Context, session *Session) error
	Close() error
}
