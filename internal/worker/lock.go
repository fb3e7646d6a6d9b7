package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/radar/common/id"
)

// ErrCycleRunning is returned when another cycle holds the lock.
var ErrCycleRunning = errors.New("a cycle is already running")

// Deletes the key only while it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// LockClient is the part of the Redis client the cycle lock uses.
type LockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// CycleLock allows one cycle at a time: in this process through a mutex and
// across workers through a Redis key with a TTL. A nil client keeps the
// lock process-local.
type CycleLock struct {
	mu       sync.Mutex
	client   LockClient
	key      string
	ttl      time.Duration
	newToken func() string
}

func NewCycleLock(client LockClient, key string, ttl time.Duration) *CycleLock {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &CycleLock{
		client:   client,
		key:      key,
		ttl:      ttl,
		newToken: id.NewString,
	}
}

// Acquire takes the lock or returns ErrCycleRunning. The returned release
// must be called exactly once.
func (l *CycleLock) Acquire(ctx context.Context) (release func(), err error) {
	if !l.mu.TryLock() {
		return nil, ErrCycleRunning
	}
	if l.client == nil {
		return l.mu.Unlock, nil
	}

	token := l.newToken()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("acquiring cycle lock: %w", err)
	}
	if !ok {
		l.mu.Unlock()
		return nil, ErrCycleRunning
	}

	return func() {
		defer l.mu.Unlock()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(rctx, releaseScript, []string{l.key}, token).Err(); err != nil {
			slog.WarnContext(rctx, "failed to release cycle lock, it will expire", "error", err, "key", l.key)
		}
	}, nil
}
