// Package pendingintent stages membership purchases awaiting payment
// confirmation and finds them again when the confirmation arrives.
package pendingintent

import (
	"context"
	"errors"
	"time"

	"github.com/gymstack/gymstack/internal/clock"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	"go.uber.org/zap"
)

const defaultTTL = 2 * time.Hour

// Chain is the ordered set of stores. Lookups probe them in order: the
// durable store first, then the session store.
type Chain struct {
	stores []pendingdomain.Store
	ttl    time.Duration
	clock  clock.Clock
	log    *zap.Logger
}

func NewChain(ttl time.Duration, clk clock.Clock, log *zap.Logger, stores ...pendingdomain.Store) *Chain {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Chain{stores: stores, ttl: ttl, clock: clk, log: log.Named("pendingintent")}
}

func (c *Chain) Stores() []pendingdomain.Store {
	return c.stores
}

// Stage writes intent under each of its identifiers to every store. It
// fails only when no store accepted it.
func (c *Chain) Stage(ctx context.Context, intent pendingdomain.Intent) (pendingdomain.Intent, error) {
	if err := intent.Validate(); err != nil {
		return intent, err
	}
	ids := intent.Identifiers()
	if len(ids) == 0 {
		return intent, pendingdomain.ErrInvalidIntent
	}

	now := c.clock.Now(ctx)
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	if intent.ExpiresAt == nil {
		expires := now.Add(c.ttl)
		intent.ExpiresAt = &expires
	}

	var errs []error
	stored := 0
	for _, store := range c.stores {
		ok := true
		for _, id := range ids {
			if err := store.Put(ctx, id, intent, c.ttl); err != nil {
				errs = append(errs, err)
				ok = false
				c.log.Warn("stage pending intent failed", zap.String("store", store.Name()), zap.String("identifier", id), zap.Error(err))
			}
		}
		if ok {
			stored++
		}
	}
	if stored == 0 {
		return intent, errors.Join(errs...)
	}
	return intent, nil
}

// Clear removes identifiers from every store, logging failures.
func (c *Chain) Clear(ctx context.Context, identifiers ...string) {
	for _, store := range c.stores {
		if err := store.Delete(ctx, identifiers...); err != nil {
			c.log.Warn("clear pending intent failed", zap.String("store", store.Name()), zap.Error(err))
		}
	}
}
