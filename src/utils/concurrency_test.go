package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescerSharesInFlightCall(t *testing.T) {
	c := NewCoalescer[int]()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, _, _ := c.Do(context.Background(), "uploads", func() (int, error) {
			calls.Add(1)
			close(started)
			<-release
			return 42, nil
		})
		results[0] = v
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, _, _ := c.Do(context.Background(), "uploads", func() (int, error) {
			calls.Add(1)
			return -1, nil
		})
		results[1] = v
	}()

	// Give the second caller time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fn ran %d times, want 1", calls.Load())
	}
	if results[0] != 42 || results[1] != 42 {
		t.Errorf("results = %v", results)
	}
}

func TestCoalescerPropagatesError(t *testing.T) {
	c := NewCoalescer[string]()
	want := errors.New("processor failed")
	_, _, err := c.Do(context.Background(), "k", func() (string, error) { return "", want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestQueueSerializesSameKey(t *testing.T) {
	q := NewRequestQueue()
	var running, maxRunning atomic.Int32
	var order []int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Run(context.Background(), "portfolio", func(ctx context.Context) error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				running.Add(-1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	if maxRunning.Load() != 1 {
		t.Errorf("max concurrent = %d, want 1", maxRunning.Load())
	}
	if len(order) != 5 {
		t.Errorf("ran %d operations, want 5", len(order))
	}
	if q.Pending() != 0 {
		t.Errorf("pending = %d after drain", q.Pending())
	}
}

func TestRequestQueueCancelledWaiter(t *testing.T) {
	q := NewRequestQueue()
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = q.Run(context.Background(), "portfolio", func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := q.Run(ctx, "portfolio", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || ran {
		t.Fatalf("err = %v, ran = %v", err, ran)
	}

	close(hold)
	third := make(chan struct{})
	go func() {
		_ = q.Run(context.Background(), "portfolio", func(ctx context.Context) error {
			close(third)
			return nil
		})
	}()
	select {
	case <-third:
	case <-time.After(time.Second):
		t.Fatal("queue stalled after a cancelled waiter")
	}
}
