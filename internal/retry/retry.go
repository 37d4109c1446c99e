// Package retry is the single resilience primitive of the engine: every
// fetcher and reasoner call goes through Do with a policy. Nothing else
// in the codebase retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/mfriman/daybrief/internal/metrics"
)

// Policy bounds one class of invocation. Fetch and reasoning calls use
// different parameter sets but share this shape.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffBase       float64
	Jitter            bool
	PerAttemptTimeout time.Duration
	// Retryable reports whether an error class is worth another attempt.
	// Per-attempt timeouts are always retryable regardless of this func.
	Retryable func(error) bool
}

// Exhausted is returned when every permitted attempt failed.
type Exhausted struct {
	Label    string
	Attempts int
	LastErr  error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Label, e.Attempts, e.LastErr)
}

func (e *Exhausted) Unwrap() error { return e.LastErr }

// Invoker wraps operations with bounded retry, exponential backoff with
// optional jitter, and a hard per-attempt timeout. It reports every
// attempt to the run's metrics recorder.
type Invoker struct {
	rec *metrics.Recorder
	log *slog.Logger
}

// NewInvoker creates an invoker bound to one run's recorder.
func NewInvoker(rec *metrics.Recorder, log *slog.Logger) *Invoker {
	return &Invoker{rec: rec, log: log}
}

// Do runs op under the policy. It returns the value of the first
// successful attempt together with the number of attempts used. A
// non-retryable error fails immediately; exhausting the policy returns
// an *Exhausted wrapping the last error. Cancellation of ctx is observed
// between attempts and during backoff, never only at the top.
func Do[T any](ctx context.Context, inv *Invoker, pol Policy, label string, op func(context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}

		attemptCtx := ctx
		var cancel context.CancelFunc = func() {}
		if pol.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, pol.PerAttemptTimeout)
		}

		start := time.Now()
		val, err := op(attemptCtx)
		cancel()
		inv.rec.Attempt(label, attempt, time.Since(start), err)

		if err == nil {
			return val, attempt, nil
		}
		lastErr = err

		// The run deadline fired mid-attempt: stop, don't reclassify as
		// a per-attempt timeout.
		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}

		if !retryable(pol, err) {
			inv.log.Warn("invocation failed, not retryable", "op", label, "attempt", attempt, "err", err)
			return zero, attempt, fmt.Errorf("%s: %w", label, err)
		}
		if attempt == pol.MaxAttempts {
			break
		}

		delay := backoffDelay(pol, attempt)
		inv.log.Warn("invocation failed, retrying", "op", label, "attempt", attempt, "delay", delay, "err", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, attempt, ctx.Err()
		}
	}

	return zero, pol.MaxAttempts, &Exhausted{Label: label, Attempts: pol.MaxAttempts, LastErr: lastErr}
}

func retryable(pol Policy, err error) bool {
	// An attempt that ran out its own budget counts as a timeout, which
	// is always worth retrying.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pol.Retryable == nil {
		return false
	}
	return pol.Retryable(err)
}

// backoffDelay computes the sleep before attempt+1:
// InitialDelay * BackoffBase^(attempt-1), jittered ±50% when enabled.
func backoffDelay(pol Policy, attempt int) time.Duration {
	base := pol.BackoffBase
	if base <= 0 {
		base = 2.0
	}
	d := time.Duration(float64(pol.InitialDelay) * math.Pow(base, float64(attempt-1)))
	if pol.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}
