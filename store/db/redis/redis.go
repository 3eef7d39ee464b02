// Package redis implements the external durable keyed session backend used
// for multi-instance operation. Records are stored as JSON values with a
// TTL assigned per save.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hrygo/expertpanel/store"
)

const sessionKeyPrefix = "expertpanel:session:"

// Driver is a redis-backed session store.
type Driver struct {
	client *goredis.Client
}

// NewDriver creates a redis driver and verifies connectivity.
func NewDriver(ctx context.Context, addr, password string, db int) (*Driver, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "connect to redis at %s", addr)
	}
	return &Driver{client: client}, nil
}

func (*Driver) Kind() string { return "redis" }

// Client exposes the underlying connection so the durable event log can
// share it.
func (d *Driver) Client() *goredis.Client {
	return d.client
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (d *Driver) CreateSession(ctx context.Context, session *store.Session, ttl time.Duration) error {
	return d.SaveSession(ctx, session, ttl)
}

func (d *Driver) GetSession(ctx context.Context, id string) (*store.Session, error) {
	payload, err := d.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	session := &store.Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return session, nil
}

func (d *Driver) SaveSession(ctx context.Context, session *store.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if err := d.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "set session")
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
