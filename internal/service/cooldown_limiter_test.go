package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reaction_timer_backend/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownLimiterDeniesInsideWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	window := 2 * time.Second
	l := NewCooldownLimiter(NewMemoryCooldownStore(), clock, window)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, BucketBegin, 1, "ip"))

	clock.Advance(500 * time.Millisecond)
	err := l.Allow(ctx, BucketBegin, 1, "ip")
	var limited *util.RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 1500*time.Millisecond, limited.RetryAfter)
	assert.LessOrEqual(t, limited.RetryAfter, window)
	assert.Equal(t, int64(1500), limited.RetryAfterMs())

	// A denied call must not push the window further out.
	clock.Advance(1500 * time.Millisecond)
	assert.NoError(t, l.Allow(ctx, BucketBegin, 1, "ip"))
}

func TestCooldownLimiterKeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewCooldownLimiter(NewMemoryCooldownStore(), clock, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, BucketBegin, 1, "ip"))
	assert.NoError(t, l.Allow(ctx, BucketSubmit, 1, "ip"), "buckets are independent")
	assert.NoError(t, l.Allow(ctx, BucketBegin, 2, "ip"), "users are independent")
	assert.NoError(t, l.Allow(ctx, BucketBegin, 1, "other-ip"), "clients are independent")
}

func TestCooldownLimiterSetWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewCooldownLimiter(NewMemoryCooldownStore(), clock, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, BucketBegin, 1, "ip"))
	l.SetWindow(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	assert.NoError(t, l.Allow(ctx, BucketBegin, 1, "ip"))
}

func TestCooldownLimiterConcurrentSameKeyAdmitsOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewCooldownLimiter(NewMemoryCooldownStore(), clock, 2*time.Second)
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ctx, BucketBegin, 9, "ip") == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestMemoryCooldownStoreSweep(t *testing.T) {
	s := NewMemoryCooldownStore()
	ctx := context.Background()
	now := time.Now()

	_, err := s.Acquire(ctx, "a", now, time.Second)
	require.NoError(t, err)
	_, err = s.Acquire(ctx, "b", now.Add(900*time.Millisecond), time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Sweep(now.Add(time.Second), time.Second))
	wait, err := s.Acquire(ctx, "b", now.Add(time.Second), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 900*time.Millisecond, wait)
}

func TestRedisCooldownStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clock := clockwork.NewFakeClock()
	l := NewCooldownLimiter(NewRedisCooldownStore(rdb), clock, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, BucketSubmit, 3, "ip"))

	err := l.Allow(ctx, BucketSubmit, 3, "ip")
	var limited *util.RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Greater(t, limited.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, limited.RetryAfter, 2*time.Second)

	mr.FastForward(2 * time.Second)
	assert.NoError(t, l.Allow(ctx, BucketSubmit, 3, "ip"))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, k.size())
}
