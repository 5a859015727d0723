package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestLocalLocker_TimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil })
	close(release)

	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("err = %v, want ErrLockNotAcquired", err)
	}
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)

	err := locker.WithLock(context.Background(), "a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("nested different keys: %v", err)
	}
}

func TestDoctorDayKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a52-0a7e-4c59-9d0e-1a1f7d3c2b10")
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	got := DoctorDayKey(id, day)
	want := "lock:doctor:6f1c2a52-0a7e-4c59-9d0e-1a1f7d3c2b10:2026-10-19"
	if got != want {
		t.Fatalf("DoctorDayKey = %q, want %q", got, want)
	}
}
