package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/logger"
)

const (
	maxBackoff      = 2 * time.Minute
	maxBackoffShift = 16
)

func calculateBackoff(retryCount int, baseDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}

	delay := baseDelay * (1 << uint(min(max(retryCount, 0), maxBackoffShift)))

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.2) // +/- 10%
	finalDelay := delay + jitter - (time.Duration(float64(delay) * 0.1))

	if finalDelay > maxBackoff {
		finalDelay = maxBackoff
	}

	return finalDelay
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// interrupted converts the reason ctx ended into a coded error. Cancellation
// by the caller or Stop maps to Canceled, a parent deadline to Timeout and
// anything else (a failing sibling) to Aborted.
func interrupted(ctx context.Context, resource string) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}

	switch {
	case errors.Is(cause, dlErrors.ErrCanceledByUser), errors.Is(cause, context.Canceled),
		errors.Is(cause, context.DeadlineExceeded):
		return dlErrors.NewContextError(cause, resource)
	default:
		return dlErrors.Wrap(dlErrors.CodeAborted, fmt.Errorf("%w: %w", dlErrors.ErrAbortedBySibling, cause), resource)
	}
}

// retryPolicy is the two-tier retry budget shared by chunk workers and the
// single-stream downloader. Negative budgets are unlimited.
type retryPolicy struct {
	connection int
	worker     int
	delay      time.Duration
}

func allows(budget, used int) bool {
	return budget < 0 || used < budget
}

// maxAttempts returns (connection+1)*(worker+1), or -1 when either is unlimited.
func (p retryPolicy) maxAttempts() int {
	if p.connection < 0 || p.worker < 0 {
		return -1
	}

	return (p.connection + 1) * (p.worker + 1)
}

// run drives attempt until it succeeds, fails with a non-retryable error,
// ctx ends, or both budgets are spent. cycle is invoked before every worker
// cycle, including the first; attempt receives the 1-based attempt number.
func (p retryPolicy) run(ctx context.Context, resource string, cycle func(restart int) error, attempt func(n int) error) error {
	var lastErr error

	n := 0

	for restart := 0; ; restart++ {
		if cycle != nil {
			if err := cycle(restart); err != nil {
				return err
			}
		}

		for retry := 0; ; retry++ {
			if ctx.Err() != nil {
				return interrupted(ctx, resource)
			}

			n++

			err := attempt(n)
			if err == nil {
				return nil
			}

			lastErr = err

			if ctx.Err() != nil {
				return interrupted(ctx, resource)
			}

			if !dlErrors.IsRetryable(err) {
				return err
			}

			if !allows(p.connection, retry) {
				break
			}

			logger.Debugf("Attempt %d for %s failed, retrying connection: %v", n, resource, err)

			if sleepCtx(ctx, calculateBackoff(retry, p.delay)) != nil {
				return interrupted(ctx, resource)
			}
		}

		if !allows(p.worker, restart) {
			break
		}

		logger.Debugf("Connection retries for %s exhausted, restarting worker (%d)", resource, restart+1)

		if sleepCtx(ctx, calculateBackoff(restart, p.delay)) != nil {
			return interrupted(ctx, resource)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", dlErrors.ErrRetriesExhausted, n, lastErr)
}

// newLimiter returns a limiter shared by all streams of a run, or nil when
// bytesPerSecond is zero.
func newLimiter(bytesPerSecond int64, bufferSize int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := max(int(bytesPerSecond), bufferSize)

	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}
