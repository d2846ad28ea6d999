package indexer

import (
	"context"
	"time"

	"jointPacks/internal/apperr"
)

const maxRetryDelay = 30 * time.Second

// retryable reports whether another attempt could succeed. Config errors
// and contract reverts fail the same way every time.
func retryable(err error) bool {
	switch apperr.Kind(err) {
	case "config", "contract_call", "cancelled":
		return false
	}
	return true
}

// withRetry runs fn until it succeeds, maxRetries is exhausted or the
// error is not retryable. The delay doubles per attempt up to maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || ctx.Err() != nil || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, maxRetryDelay)
	}
}
