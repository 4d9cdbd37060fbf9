package utils

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// -----------------------------------------------------------------------------

// Coalescer shares one in-flight call between concurrent callers using the
// same request signature.
type Coalescer[T any] struct {
	group singleflight.Group
}

// -----------------------------------------------------------------------------

func NewCoalescer[T any]() *Coalescer[T] {
	return &Coalescer[T]{}
}

// -----------------------------------------------------------------------------

// Do runs fn once per key at a time. Callers arriving while the call is in
// flight wait for its result; shared reports whether the result was reused.
// A caller whose ctx ends stops waiting, the call itself keeps running.
func (c *Coalescer[T]) Do(ctx context.Context, key string, fn func() (T, error)) (result T, shared bool, err error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

