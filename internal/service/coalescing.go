package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// requestCoalescer lets concurrent misses for the same key share one upstream
// call. Waiters give up after timeout or when their own context ends; the
// shared call keeps running for the others.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. shared reports
// whether the result was delivered to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() ([]byte, error)) (data []byte, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (any, error) {
		return fn()
	})

	waitCtx := ctx
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.([]byte), res.Shared, nil
	case <-waitCtx.Done():
		return nil, false, waitCtx.Err()
	}
}
