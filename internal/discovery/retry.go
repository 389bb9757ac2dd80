package discovery

import (
	"context"
	"time"
)

const maxRetryDelay = 10 * time.Second

// retryPolicy bounds how often a failing RPC call inside one tick is retried.
type retryPolicy struct {
	maxRetries int
	backoff    time.Duration
}

// do runs fn until it succeeds, retries are exhausted or ctx ends. The delay doubles
// per attempt up to maxRetryDelay.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := p.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.backoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
