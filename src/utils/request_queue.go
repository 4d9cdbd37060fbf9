package utils

import (
	"context"
	"sync"
)

// -----------------------------------------------------------------------------

// RequestQueue serializes operations sharing a scope key. Each call waits for
// the previous call under the same key before starting.
type RequestQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// -----------------------------------------------------------------------------

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{tails: make(map[string]chan struct{})}
}

// -----------------------------------------------------------------------------

// Run waits for any earlier operation queued under key, then runs fn. If ctx
// ends while waiting, fn is not run and ctx.Err() is returned; later callers
// still wait for the earlier operation.
func (q *RequestQueue) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	release := func() {
		close(done)
		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn(ctx)
}

// -----------------------------------------------------------------------------

// Pending reports how many scopes currently have queued or running work.
func (q *RequestQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
