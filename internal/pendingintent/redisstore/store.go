// Package redisstore keeps pending intents in Redis as snappy-compressed
// JSON under "payment_pending_<identifier>".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanCount = 200

type Store struct {
	client *redis.Client
	log    *zap.Logger
}

func New(client *redis.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: log.Named("pendingintent.redis")}
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Get(ctx context.Context, identifier string) (*pendingdomain.Intent, error) {
	if identifier == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, pendingdomain.Key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", pendingdomain.ErrStoreFailure, err)
	}
	intent, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *Store) Put(ctx context.Context, identifier string, intent pendingdomain.Intent, ttl time.Duration) error {
	if identifier == "" {
		return pendingdomain.ErrInvalidIntent
	}
	raw, err := encode(intent)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, pendingdomain.Key(identifier), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", pendingdomain.ErrStoreFailure, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identifiers ...string) error {
	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id != "" {
			keys = append(keys, pendingdomain.Key(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", pendingdomain.ErrStoreFailure, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, match func(pendingdomain.Intent) bool) (*pendingdomain.Intent, error) {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pendingdomain.KeyPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pendingdomain.ErrStoreFailure, err)
		}

		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				// Expired between SCAN and GET.
				continue
			}
			intent, err := decode(raw)
			if err != nil {
				s.log.Warn("skipping undecodable pending intent", zap.String("key", key), zap.Error(err))
				continue
			}
			if match(intent) {
				return &intent, nil
			}
		}

		cursor = next
		if cursor == 0 {
			return nil, nil
		}
	}
}

func encode(intent pendingdomain.Intent) ([]byte, error) {
	raw, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decode(raw []byte) (pendingdomain.Intent, error) {
	var intent pendingdomain.Intent
	plain, err := snappy.Decode(nil, raw)
	if err != nil {
		return intent, fmt.Errorf("%w: %v", pendingdomain.ErrInvalidIntent, err)
	}
	if err := json.Unmarshal(plain, &intent); err != nil {
		return intent, fmt.Errorf("%w: %v", pendingdomain.ErrInvalidIntent, err)
	}
	return intent, nil
}
