package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "AAPL")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, l.size())
}

func TestLocal_DifferentKeysDoNotContend(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "AAPL")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "MSFT")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "AAPL")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "AAPL")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.size())
}

// TestRedis runs against a live server when REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	l := NewRedis(client, 5*time.Second)
	unlock, err := l.Lock(context.Background(), "TEST-LOCK")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "TEST-LOCK")
	assert.Error(t, err)

	unlock()
	unlock2, err := l.Lock(context.Background(), "TEST-LOCK")
	require.NoError(t, err)
	unlock2()

	t.Run("held_lock_outlives_ttl", func(t *testing.T) {
		l := NewRedis(client, MinTTL)
		unlock, err := l.Lock(context.Background(), "TEST-RENEW")
		require.NoError(t, err)

		time.Sleep(2500 * time.Millisecond)
		ttl, err := client.PTTL(context.Background(), keyPrefix+"TEST-RENEW").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0), "key expired while held")

		unlock()
		exists, err := client.Exists(context.Background(), keyPrefix+"TEST-RENEW").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})

	t.Run("failed_release_is_logged", func(t *testing.T) {
		own := redis.NewClient(&redis.Options{Addr: addr})
		l := NewRedis(own, 5*time.Second)
		core, logs := observer.New(zap.WarnLevel)
		l.log = zap.New(core).Sugar()
		defer client.Del(context.Background(), keyPrefix+"TEST-RELEASE")

		unlock, err := l.Lock(context.Background(), "TEST-RELEASE")
		require.NoError(t, err)
		require.NoError(t, own.Close())
		unlock()

		entries := logs.FilterMessage("Failed to release lock; it will expire after its TTL").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "TEST-RELEASE", fields["key"])
		assert.Equal(t, 5*time.Second, fields["ttl"])
		assert.Contains(t, fields["error"], "closed")
	})
}

func TestNewRedis_ShortTTLFallsBack(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer func() { _ = client.Close() }()

	assert.Equal(t, DefaultTTL, NewRedis(client, 0).ttl)
	assert.Equal(t, DefaultTTL, NewRedis(client, 10*time.Millisecond).ttl)
	assert.Equal(t, 5*time.Second, NewRedis(client, 5*time.Second).ttl)
}

func TestKeepAlive(t *testing.T) {
	log := zap.NewNop().Sugar()

	run := func(stop chan struct{}, interval time.Duration, extend func() (bool, error)) chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			keepAlive(stop, interval, extend, log)
		}()
		return done
	}

	t.Run("extends_until_stopped", func(t *testing.T) {
		var calls atomic.Int32
		stop := make(chan struct{})
		done := run(stop, 5*time.Millisecond, func() (bool, error) {
			calls.Add(1)
			return true, nil
		})

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
		close(stop)
		<-done
		after := calls.Load()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, after, calls.Load(), "extended after stop")
	})

	t.Run("gives_up_when_ownership_lost", func(t *testing.T) {
		var calls atomic.Int32
		done := run(make(chan struct{}), 5*time.Millisecond, func() (bool, error) {
			calls.Add(1)
			return false, nil
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("keepAlive kept running after losing the key")
		}
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("retries_after_errors", func(t *testing.T) {
		var calls atomic.Int32
		stop := make(chan struct{})
		done := run(stop, 5*time.Millisecond, func() (bool, error) {
			if calls.Add(1) <= 2 {
				return false, errors.New("connection reset")
			}
			return true, nil
		})

		require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
		close(stop)
		<-done
	})

	t.Run("zero_interval_returns", func(t *testing.T) {
		done := run(make(chan struct{}), 0, func() (bool, error) {
			t.Error("extend called with zero interval")
			return true, nil
		})
		<-done
	})
}
