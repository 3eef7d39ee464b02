// Package db selects the session store backend from the profile.
package db

import (
	"context"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/store"
	"github.com/hrygo/expertpanel/store/db/memory"
	"github.com/hrygo/expertpanel/store/db/redis"
)

// NewDriver creates the configured session store driver: redis when a redis
// address is configured, the in-process registry otherwise.
func NewDriver(ctx context.Context, p *profile.Profile) (store.Driver, error) {
	if p.UseExternalStore() {
		return redis.NewDriver(ctx, p.RedisAddr, p.RedisPassword, p.RedisDB)
	}
	return memory.NewDriver(), nil
}
