package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLeaseHeld is returned when another pipeline owns the target.
var ErrLeaseHeld = errors.New("lease held by another worker")

const keyPrefix = "sentinel:lease:"

// Only the owner of the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type Leaser struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewClient(redisURL string) *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return redis.NewClient(opt)
}

func NewLeaser(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Leaser {
	return &Leaser{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "leaser")),
	}
}

// Acquire takes the per-target lease. The returned release func is safe to
// call once the lease has expired or been taken over.
func (l *Leaser) Acquire(ctx context.Context, monitorID string) (func(), error) {
	key := keyPrefix + monitorID
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease for %s: %w", monitorID, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return func() { l.release(key, token) }, nil
}

// release deletes key if it still holds token. Failures are logged; the key
// then lapses with its TTL.
func (l *Leaser) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("Failed to release lease",
			zap.String("key", key),
			zap.Duration("expires_within", l.ttl),
			zap.Error(err),
		)
	}
}

func (l *Leaser) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
