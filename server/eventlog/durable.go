package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// DurableLog is the cross-process append-only store for turn-boundary
// events. Indices are list positions and are never reused.
type DurableLog interface {
	Append(ctx context.Context, sessionID string, data []byte) error
	Length(ctx context.Context, sessionID string) (int64, error)
	From(ctx context.Context, sessionID string, index int64) ([][]byte, error)
	Close() error
}

// MemoryDurableLog keeps the durable tail in process memory. Suitable for
// single-instance operation and tests.
type MemoryDurableLog struct {
	mu    sync.RWMutex
	lists map[string][][]byte
}

func NewMemoryDurableLog() *MemoryDurableLog {
	return &MemoryDurableLog{lists: make(map[string][][]byte)}
}

func (m *MemoryDurableLog) Append(_ context.Context, sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[sessionID] = append(m.lists[sessionID], data)
	return nil
}

func (m *MemoryDurableLog) Length(_ context.Context, sessionID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[sessionID])), nil
}

func (m *MemoryDurableLog) From(_ context.Context, sessionID string, index int64) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[sessionID]
	if index < 0 {
		index = 0
	}
	if index >= int64(len(list)) {
		return nil, nil
	}
	out := make([][]byte, len(list[index:]))
	copy(out, list[index:])
	return out, nil
}

func (*MemoryDurableLog) Close() error { return nil }

const eventListKeyPrefix = "expertpanel:events:"

// RedisDurableLog stores the boundary-event tail in a redis list per
// session, so any instance can replay it.
type RedisDurableLog struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisDurableLog wraps an existing client. The list TTL is refreshed on
// every append so the tail outlives the busiest session by ttl.
func NewRedisDurableLog(client *goredis.Client, ttl time.Duration) *RedisDurableLog {
	return &RedisDurableLog{client: client, ttl: ttl}
}

func eventListKey(sessionID string) string {
	return eventListKeyPrefix + sessionID
}

func (r *RedisDurableLog) Append(ctx context.Context, sessionID string, data []byte) error {
	key := eventListKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "append event")
	}
	return nil
}

func (r *RedisDurableLog) Length(ctx context.Context, sessionID string) (int64, error) {
	n, err := r.client.LLen(ctx, eventListKey(sessionID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "event log length")
	}
	return n, nil
}

func (r *RedisDurableLog) From(ctx context.Context, sessionID string, index int64) ([][]byte, error) {
	items, err := r.client.LRange(ctx, eventListKey(sessionID), index, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "event log range")
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

// Close is a no-op; the shared client is owned by the session store driver.
func (*RedisDurableLog) Close() error { return nil }
