// Package memory implements the in-process session registry used for
// single-instance operation. It is an explicit injectable store: every
// instance is isolated, there is no process-wide singleton.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hrygo/expertpanel/store"
)

type entry struct {
	session   *store.Session
	expiresAt time.Time
}

// Driver is an in-memory session store with lazy TTL expiry.
type Driver struct {
	mu       sync.RWMutex
	sessions map[string]entry

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

func (*Driver) Kind() string { return "memory" }

func (d *Driver) CreateSession(_ context.Context, session *store.Session, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[session.ID] = entry{
		session:   session.Clone(),
		expiresAt: d.now().Add(ttl),
	}
	return nil
}

func (d *Driver) GetSession(_ context.Context, id string) (*store.Session, error) {
	d.mu.RLock()
	e, ok := d.sessions[id]
	d.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	if d.now().After(e.expiresAt) {
		d.mu.Lock()
		delete(d.sessions, id)
		d.mu.Unlock()
		return nil, store.ErrNotFound
	}
	return e.session.Clone(), nil
}

func (d *Driver) SaveSession(_ context.Context, session *store.Session, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[session.ID] = entry{
		session:   session.Clone(),
		expiresAt: d.now().Add(ttl),
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]entry)
	return nil
}

// SetClock overrides the expiry clock. Test hook.
func (d *Driver) SetClock(now func() time.Time) {
	d.now = now
}
