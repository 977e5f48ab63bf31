// Package sessionstore is the process-local pending intent store. Entries
// live in a bounded LRU and lapse after their TTL.
package sessionstore

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gymstack/gymstack/internal/clock"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
)

const defaultSize = 4096

type entry struct {
	intent    pendingdomain.Intent
	expiresAt time.Time
}

type Store struct {
	cache *lru.Cache[string, entry]
	clock clock.Clock
}

func New(size int, clk clock.Clock) (*Store, error) {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("session pending intent store init: %w", err)
	}
	return &Store{cache: cache, clock: clk}, nil
}

func (s *Store) Name() string { return "session" }

func (s *Store) live(ctx context.Context, key string, e entry) bool {
	if !e.expiresAt.IsZero() && !s.clock.Now(ctx).Before(e.expiresAt) {
		s.cache.Remove(key)
		return false
	}
	return true
}

func (s *Store) Get(ctx context.Context, identifier string) (*pendingdomain.Intent, error) {
	if identifier == "" {
		return nil, nil
	}
	key := pendingdomain.Key(identifier)
	e, ok := s.cache.Get(key)
	if !ok || !s.live(ctx, key, e) {
		return nil, nil
	}
	intent := e.intent
	return &intent, nil
}

func (s *Store) Put(ctx context.Context, identifier string, intent pendingdomain.Intent, ttl time.Duration) error {
	if identifier == "" {
		return pendingdomain.ErrInvalidIntent
	}
	e := entry{intent: intent}
	if ttl > 0 {
		e.expiresAt = s.clock.Now(ctx).Add(ttl)
	}
	s.cache.Add(pendingdomain.Key(identifier), e)
	return nil
}

func (s *Store) Delete(_ context.Context, identifiers ...string) error {
	for _, id := range identifiers {
		if id != "" {
			s.cache.Remove(pendingdomain.Key(id))
		}
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, match func(pendingdomain.Intent) bool) (*pendingdomain.Intent, error) {
	for _, key := range s.cache.Keys() {
		e, ok := s.cache.Peek(key)
		if !ok || !s.live(ctx, key, e) {
			continue
		}
		if match(e.intent) {
			intent := e.intent
			return &intent, nil
		}
	}
	return nil, nil
}
