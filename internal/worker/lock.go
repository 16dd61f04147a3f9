package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another drain pass currently holds the lock.
var ErrLockHeld = errors.New("drain already in progress")

// Locker guards against overlapping drain passes. Two concurrent drains
// would both pick up the same pending uploads and double-submit them.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker is a SETNX advisory lock with a TTL so a crashed drain
// cannot wedge the queue. Unlock only deletes the key when the token
// still matches, so an expired lock taken over by another pass is safe.
type RedisLocker struct {
	redis *redis.Client
}

func NewRedisLocker(redisClient *redis.Client) *RedisLocker {
	return &RedisLocker{redis: redisClient}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.redis, []string{key}, token).Result()
	return err
}

// LocalLocker is the in-process equivalent used when the drain runs
// inline in the API process with no Redis available.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", ErrLockHeld
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
