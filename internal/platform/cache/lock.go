package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock is already taken by another holder.
var ErrLockHeld = errors.New("platform/cache: lock held")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements a best-effort advisory lock on Redis. It is not a
// fencing mechanism: the database transaction remains the correctness
// boundary for whatever the lock guards.
type Locker struct {
	client *redis.Client
	retry  time.Duration
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, retry: 50 * time.Millisecond}
}

// Acquire takes the lock, polling until ctx expires. The returned function
// releases it; release after TTL expiry is a silent no-op.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
		}
		if ok {
			release := func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.client, []string{key}, token).Err()
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		case <-time.After(l.retry):
		}
	}
}
