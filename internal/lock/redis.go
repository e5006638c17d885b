package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stocktracker/internal/logger"
)

// TTL bounds for Redis locks. A TTL below MinTTL falls back to DefaultTTL.
const (
	DefaultTTL = 30 * time.Second
	MinTTL     = time.Second
)

const (
	keyPrefix = "stocktracker:lock:"

	// renewals per TTL while the lock is held
	renewDivisor = 3
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var errHeld = errors.New("lock held")

// Redis is a cross-process Locker using SET NX PX with a per-holder token.
// While a lock is held its TTL is renewed every ttl/3, so a slow refresh
// keeps the key and a crashed holder still frees it after ttl.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedis creates a Redis-backed Locker. ttl bounds how long a crashed
// holder can block other processes.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	r := &Redis{client: client, ttl: ttl, log: logger.Component("lock")}
	if ttl < MinTTL {
		r.log.Warnw("Lock TTL too short, using default", "ttl", ttl, "default", DefaultTTL)
		r.ttl = DefaultTTL
	}
	return r
}

// Lock polls until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 25 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquiring %s: %w", key, err))
		}
		if !ok {
			return errHeld
		}
		return nil
	}, backoff.WithContext(eb, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, r.ttl/renewDivisor, func() (bool, error) {
			extendCtx, cancel := context.WithTimeout(context.Background(), r.ttl/renewDivisor)
			defer cancel()
			n, err := extendScript.Run(extendCtx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
			return n == 1, err
		}, r.log.With("key", key))
	}()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done

		// Release on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.log.Warnw("Failed to release lock; it will expire after its TTL",
				"key", key,
				"ttl", r.ttl,
				"error", err,
			)
		}
	}, nil
}

// keepAlive calls extend every interval until stop is closed. It stops early
// once extend reports the key is no longer ours; transient errors are logged
// and retried on the next tick.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), log *zap.SugaredLogger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			owned, err := extend()
			switch {
			case err != nil:
				log.Warnw("Failed to extend lock", "error", err)
			case !owned:
				log.Warnw("Lock lost before release")
				return
			}
		}
	}
}
