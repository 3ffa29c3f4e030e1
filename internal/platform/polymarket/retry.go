package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

const (
	// retryAttempts is the total number of tries, including the first.
	retryAttempts = 5
	// retryBaseDelay is the first backoff step; it doubles per attempt.
	retryBaseDelay = 500 * time.Millisecond
	// retryMaxDelay caps the backoff.
	retryMaxDelay = 8 * time.Second
	// perAttemptTimeout bounds each individual request.
	perAttemptTimeout = 10 * time.Second
)

// retryable reports whether the error is worth another attempt: exchange
// 5xx, rate limiting, and network timeouts. Auth failures, 4xx rejections,
// and decode errors are permanent.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrExchange) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// withRetry runs fn with a per-attempt timeout and exponential backoff on
// retryable errors. The last error is returned when all attempts fail.
func withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) || attempt == retryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("polymarket: %s: %w", op, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return fmt.Errorf("polymarket: %s: %w", op, lastErr)
}
