package clock

import (
	"context"
	"time"
)

// Clock reports the current time and suspends the caller for a duration.
// Now never goes backwards for a given Clock.
type Clock interface {
	Now() time.Time
	// Sleep returns once d has elapsed according to Now, or with
	// ctx.Err() if ctx is done first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// Real returns a Clock backed by the system time.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
