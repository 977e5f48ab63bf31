package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "gymstack:scheduler:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// locker keeps a job to one scheduler instance at a time.
type locker struct {
	client *redis.Client
	owner  string
}

func (l *locker) acquire(ctx context.Context, job string, ttl time.Duration) (func(), bool, error) {
	key := lockKeyPrefix + job
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, l.owner).Err()
	}, true, nil
}
