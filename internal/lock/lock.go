package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL   = 10 * time.Second
	defaultRetry = 25 * time.Millisecond
	keyPrefix    = "newsfeed:"
)

var ErrUnknownMode = errors.New("unknown lock mode")

// Local serializes holders of the same key within one process.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil {
		return nil, fmt.Errorf("local locker is nil")
	}
	slot := l.slot(key)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for lock %q: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Redis is a best-effort cross-process lock built on SET NX with a TTL.
type Redis struct {
	client redisClient
	ttl    time.Duration
	retry  time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return newRedis(client, ttl)
}

func newRedis(client redisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, retry: defaultRetry}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("redis locker is not initialized")
	}
	fullKey := keyPrefix + key
	token := uuid.NewString()

	for {
		acquired, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire redis lock %q: %w", fullKey, err)
		}
		if acquired {
			break
		}
		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("wait for redis lock %q: %w", fullKey, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err()
		})
	}, nil
}

// Mode names a locker implementation in configuration.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeLocal Mode = "local"
	ModeRedis Mode = "redis"
)

func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeNone, ModeLocal, ModeRedis:
		return mode, nil
	case "":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}
