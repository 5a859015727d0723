package redisclient

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// testRedis connects to TEST_REDIS_ADDR or skips.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(context.Background(), addr, "", "")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLocker_SerializesAcrossClients(t *testing.T) {
	key := "lock:test:" + uuid.NewString()
	lockers := []Locker{
		NewRedisLocker(testRedis(t), 5*time.Second, 10*time.Second),
		NewRedisLocker(testRedis(t), 5*time.Second, 10*time.Second),
	}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(l Locker) {
			defer wg.Done()
			err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}(lockers[i%2])
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestRedisLocker_ReleasesOnlyOwnToken(t *testing.T) {
	rdb := testRedis(t)
	key := "lock:test:" + uuid.NewString()
	locker := NewRedisLocker(rdb, 5*time.Second, 50*time.Millisecond)
	ctx := context.Background()

	err := locker.WithLock(ctx, key, func(ctx context.Context) error {
		// the key expired and another holder took it
		return rdb.Set(ctx, key, "someone-else", time.Minute).Err()
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if got, _ := rdb.Get(ctx, key).Result(); got != "someone-else" {
		t.Fatalf("lock value = %q, foreign holder was released", got)
	}

	err = locker.WithLock(ctx, key, func(context.Context) error { return nil })
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("err = %v, want ErrLockNotAcquired", err)
	}

	rdb.Del(ctx, key)
	if err := locker.WithLock(ctx, key, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("WithLock after release: %v", err)
	}
	if n, _ := rdb.Exists(ctx, key).Result(); n != 0 {
		t.Fatalf("key still set after WithLock returned")
	}
}
