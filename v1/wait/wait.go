package wait

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-settle/v1/clock"
	settleerrors "github.com/mirkobrombin/go-settle/v1/errors"
	"github.com/mirkobrombin/go-settle/v1/metrics"
)

const instrumentationName = "github.com/mirkobrombin/go-settle/v1/wait"

// Probe samples the awaited condition. A non-nil error marks the sample as
// failed; it is remembered and retried while the deadline has not passed.
// A probe may block, in which case the wait blocks with it.
type Probe[T any] func(ctx context.Context) (T, error)

const (
	resultMatch     = "match"
	resultTimeout   = "timeout"
	resultError     = "error"
	resultCancelled = "cancelled"
)

// For polls probe until it returns a value matched by Truthy.
func For[T any](ctx context.Context, clk clock.Clock, probe Probe[T], opts ...Option) (T, error) {
	return ForMatch(ctx, clk, probe, Truthy[T](), opts...)
}

// ForMatch polls probe until it returns a value matched by m.
//
// The deadline is fixed when ForMatch is called. Each round samples the
// probe, returns on a match, fails once clk.Now() has reached the deadline,
// and otherwise sleeps for the interval. On failure the most recent probe
// error wins over a non-matching value. Cancelling ctx ends the wait with
// ctx.Err() at the next sleep.
func ForMatch[T any](ctx context.Context, clk clock.Clock, probe Probe[T], m Matcher[T], opts ...Option) (T, error) {
	s := newSettings(opts)
	if m == nil {
		m = Truthy[T]()
	}

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "wait.For", trace.WithAttributes(
			attribute.String("settle.wait.name", s.name),
			attribute.Int64("settle.wait.timeout_ms", s.timeout.Milliseconds()),
			attribute.Int64("settle.wait.interval_ms", s.interval.Milliseconds()),
		))
		defer span.End()
	}

	var (
		zero     T
		lastErr  error
		lastVal  T
		hasValue bool
		polls    int
	)
	finish := func(result string, err error) {
		metrics.WaitCounter.WithLabelValues(result).Inc()
		if span == nil {
			return
		}
		span.SetAttributes(
			attribute.String("settle.wait.result", result),
			attribute.Int("settle.wait.polls", polls),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	deadline := clk.Now().Add(s.timeout)
	for {
		v, err := sample(ctx, probe)
		polls++
		metrics.WaitPollCounter.Inc()
		if err != nil {
			lastErr = err
			slog.Debug("settle: probe failed, retrying", "wait", s.name, "poll", polls, "error", err)
		} else {
			ok, merr := match(m, v)
			if merr != nil {
				// A broken matcher fails the same way on every round.
				finish(resultError, merr)
				return zero, merr
			}
			if ok {
				finish(resultMatch, nil)
				return v, nil
			}
			lastVal, hasValue = v, true
		}

		if !clk.Now().Before(deadline) {
			if lastErr != nil {
				finish(resultError, lastErr)
				return zero, lastErr
			}
			terr := &settleerrors.TimeoutError{Timeout: s.timeout, Polls: polls}
			if hasValue {
				terr.LastValue, terr.HasValue = lastVal, true
			}
			finish(resultTimeout, terr)
			return zero, terr
		}

		if err := clk.Sleep(ctx, s.interval); err != nil {
			finish(resultCancelled, err)
			return zero, err
		}
	}
}

// Until polls cond until it reports true. It returns nil on success and the
// same errors as For otherwise.
func Until(ctx context.Context, clk clock.Clock, cond func(ctx context.Context) (bool, error), opts ...Option) error {
	_, err := For(ctx, clk, Probe[bool](cond), opts...)
	return err
}

// match runs m, turning a panic into a *errors.PanicError.
func match[T any](m Matcher[T], v T) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &settleerrors.PanicError{Value: r}
		}
	}()
	return m.Match(v), nil
}

// sample invokes probe, turning a panic into a *errors.PanicError.
func sample[T any](ctx context.Context, probe Probe[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &settleerrors.PanicError{Value: r}
		}
	}()
	return probe(ctx)
}
