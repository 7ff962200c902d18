package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"reaction_timer_backend/internal/util"
	"reaction_timer_backend/pkg/logger"
	"reaction_timer_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type CooldownBucket string

const (
	BucketBegin  CooldownBucket = "begin"
	BucketSubmit CooldownBucket = "submit"
)

// CooldownStore records the last admitted call per key.
type CooldownStore interface {
	// Acquire admits the call when the key has no mark younger than window,
	// recording now as the new mark. Otherwise it returns the remaining wait
	// and leaves the mark untouched.
	Acquire(ctx context.Context, key string, now time.Time, window time.Duration) (time.Duration, error)
}

// CooldownLimiter is a fixed-cooldown limiter: after an admitted call the
// same (bucket, user, client) key is denied until the window has elapsed.
// No bursts are allowed.
type CooldownLimiter struct {
	store  CooldownStore
	clock  clockwork.Clock
	window atomic.Int64
}

func NewCooldownLimiter(store CooldownStore, clock clockwork.Clock, window time.Duration) *CooldownLimiter {
	l := &CooldownLimiter{store: store, clock: clock}
	l.SetWindow(window)
	return l
}

func (l *CooldownLimiter) Window() time.Duration {
	return time.Duration(l.window.Load())
}

// SetWindow changes the cooldown for subsequent calls.
func (l *CooldownLimiter) SetWindow(window time.Duration) {
	l.window.Store(int64(window))
}

// Allow returns a *util.RateLimitedError when the key is cooling down.
func (l *CooldownLimiter) Allow(ctx context.Context, bucket CooldownBucket, userID uint, clientKey string) error {
	key := cooldownKey(bucket, userID, clientKey)
	wait, err := l.store.Acquire(ctx, key, l.clock.Now(), l.Window())
	if err != nil {
		return fmt.Errorf("cooldown check: %w", err)
	}
	if wait > 0 {
		monitoring.RateLimitDenials.WithLabelValues(string(bucket)).Inc()
		logger.Log.Debug("cooldown denied",
			zap.String("bucket", string(bucket)),
			zap.Uint("userId", userID),
			zap.Duration("retryAfter", wait),
		)
		return &util.RateLimitedError{Bucket: string(bucket), RetryAfter: wait}
	}
	return nil
}

func cooldownKey(bucket CooldownBucket, userID uint, clientKey string) string {
	return "cooldown:" + string(bucket) + ":" + strconv.FormatUint(uint64(userID), 10) + ":" + clientKey
}

const cooldownShardCount = 32

type cooldownShard struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// MemoryCooldownStore keeps marks in process memory, split across shards so
// unrelated keys rarely share a lock.
type MemoryCooldownStore struct {
	shards [cooldownShardCount]*cooldownShard
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	s := &MemoryCooldownStore{}
	for i := range s.shards {
		s.shards[i] = &cooldownShard{marks: make(map[string]time.Time)}
	}
	return s
}

func (s *MemoryCooldownStore) shard(key string) *cooldownShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%cooldownShardCount]
}

func (s *MemoryCooldownStore) Acquire(_ context.Context, key string, now time.Time, window time.Duration) (time.Duration, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if last, ok := sh.marks[key]; ok {
		if elapsed := now.Sub(last); elapsed < window {
			return window - elapsed, nil
		}
	}
	sh.marks[key] = now
	return 0, nil
}

// Sweep drops marks that can no longer deny anything and returns how many
// were removed.
func (s *MemoryCooldownStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, last := range sh.marks {
			if now.Sub(last) >= window {
				delete(sh.marks, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// RedisCooldownStore keeps marks as expiring keys so every instance behind a
// load balancer shares one cooldown. Expiry follows the Redis server clock.
type RedisCooldownStore struct {
	Redis *redis.Client
}

func NewRedisCooldownStore(rdb *redis.Client) *RedisCooldownStore {
	return &RedisCooldownStore{Redis: rdb}
}

func (s *RedisCooldownStore) Acquire(ctx context.Context, key string, now time.Time, window time.Duration) (time.Duration, error) {
	// The key can expire between SET NX and PTTL; retry a few times before
	// giving up.
	for i := 0; i < 3; i++ {
		ok, err := s.Redis.SetNX(ctx, key, now.UnixMilli(), window).Result()
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, nil
		}

		ttl, err := s.Redis.PTTL(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		if ttl > 0 {
			return ttl, nil
		}
		if ttl == -1 {
			// A mark without expiry would deny forever; repair it.
			if err := s.Redis.PExpire(ctx, key, window).Err(); err != nil {
				return 0, err
			}
			return window, nil
		}
	}
	return 0, errors.New("cooldown key kept expiring during acquire")
}
