package wait

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds a wait when WithTimeout is not given.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval separates two probe invocations when WithInterval
	// is not given.
	DefaultInterval = 100 * time.Millisecond
)

type settings struct {
	timeout  time.Duration
	interval time.Duration
	name     string
	tracer   trace.Tracer
}

// Option configures a single wait.
type Option func(*settings)

// WithTimeout sets the maximum clock measured duration of the wait.
// Non-positive values select DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInterval sets the polling period. Non-positive values select
// DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithName labels the wait in traces and logs.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithTracing enables a span per wait using the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(s *settings) {
		if enabled {
			s.tracer = otel.Tracer(instrumentationName)
		} else {
			s.tracer = nil
		}
	}
}

// WithTracerProvider enables tracing using tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout, interval: DefaultInterval}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
