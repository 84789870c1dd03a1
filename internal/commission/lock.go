package commission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes runs of the same week. TryLock fails fast with
// ErrWeekAlreadyProcessing instead of waiting.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

func weekLockKey(week Week) string {
	return "commission:settlement:lock:" + week.Key()
}

// finalizeLockKey serializes finalization across weeks.
const finalizeLockKey = "commission:settlement:lock:finalize"

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("TryLock %s: %w", key, ErrWeekAlreadyProcessing)
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the week lock between api, worker and scheduler processes.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("TryLock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("TryLock %s: %w", key, ErrWeekAlreadyProcessing)
	}
	return func() {
		// The run context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, token)
	}, nil
}
