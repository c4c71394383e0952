package lock

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	settleerrors "github.com/mirkobrombin/go-settle/v1/errors"
	"github.com/mirkobrombin/go-settle/v1/metrics"
	"github.com/mirkobrombin/go-settle/v1/syncbus"
)

// Lock is a FIFO mutual exclusion lock. The zero value is not usable; use
// New.
type Lock struct {
	name          string
	awaitChecking bool
	bus           syncbus.Bus

	mu      sync.Mutex
	held    bool
	waiters list.List // of chan struct{}
}

// Option configures a Lock.
type Option func(*Lock)

// WithAwaitChecking makes Acquire fail with ErrAlreadyHeld instead of
// queueing when the lock is held.
func WithAwaitChecking(enabled bool) Option {
	return func(l *Lock) {
		l.awaitChecking = enabled
	}
}

// WithName sets the name used in logs and bus topics. Locks get a random
// name by default.
func WithName(name string) Option {
	return func(l *Lock) {
		if name != "" {
			l.name = name
		}
	}
}

// WithBus publishes syncbus.LockTopic after every grant and
// syncbus.UnlockTopic whenever the lock becomes idle.
//
// Events are published after the internal state has changed and without
// holding the lock's mutex, so observers may see the next owner's lock
// event before the previous owner's unlock event. A waiter whose context
// is cancelled while it is being granted publishes only the unlock event
// of its immediate hand-off.
func WithBus(bus syncbus.Bus) Option {
	return func(l *Lock) {
		l.bus = bus
	}
}

// New returns an idle lock.
func New(opts ...Option) *Lock {
	l := &Lock{name: uuid.NewString()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the lock name.
func (l *Lock) Name() string {
	return l.name
}

// Acquire blocks until the caller owns the lock. Waiters are granted in
// arrival order. With await checking enabled Acquire never blocks and
// returns ErrAlreadyHeld if the lock is held.
//
// If ctx is done before the lock is granted, the caller leaves the queue
// and ctx.Err() is returned. A grant racing with cancellation is passed on
// to the next waiter.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		l.granted(ctx)
		return nil
	}
	if l.awaitChecking {
		l.mu.Unlock()
		metrics.LockRejectedCounter.Inc()
		return settleerrors.ErrAlreadyHeld
	}
	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()
	metrics.LockWaitersGauge.Inc()
	metrics.LockContendedCounter.Inc()

	select {
	case <-ready:
		l.granted(ctx)
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-ready:
		// Granted after cancellation; hand the lock on.
		idle := l.releaseLocked()
		l.mu.Unlock()
		if idle {
			l.publish(context.WithoutCancel(ctx), syncbus.UnlockTopic(l.name))
		}
	default:
		l.waiters.Remove(elem)
		l.mu.Unlock()
		metrics.LockWaitersGauge.Dec()
	}
	return ctx.Err()
}

// TryAcquire takes the lock if it is idle and reports whether it did.
func (l *Lock) TryAcquire() bool {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		return false
	}
	l.held = true
	l.mu.Unlock()
	l.granted(context.Background())
	return true
}

// Release gives up ownership. The oldest waiter, if any, becomes the new
// owner and the lock stays held; otherwise the lock becomes idle. Release
// returns ErrIllegalState if the lock is not held.
func (l *Lock) Release() error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		metrics.LockIllegalReleaseCounter.Inc()
		return settleerrors.ErrIllegalState
	}
	idle := l.releaseLocked()
	l.mu.Unlock()
	if idle {
		l.publish(context.Background(), syncbus.UnlockTopic(l.name))
	}
	return nil
}

// releaseLocked wakes the oldest waiter or marks the lock idle. It reports
// whether the lock became idle. l.mu must be held.
func (l *Lock) releaseLocked() bool {
	front := l.waiters.Front()
	if front == nil {
		l.held = false
		return true
	}
	l.waiters.Remove(front)
	metrics.LockWaitersGauge.Dec()
	close(front.Value.(chan struct{}))
	return false
}

// IsHeld reports whether some caller owns the lock.
func (l *Lock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Waiters returns the number of queued Acquire calls.
func (l *Lock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}

// WithLock runs fn while holding the lock and releases it afterwards, even
// if fn panics.
func (l *Lock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			slog.Error("settle: release after critical section failed", "lock", l.name, "error", err)
		}
	}()
	return fn(ctx)
}

func (l *Lock) granted(ctx context.Context) {
	metrics.LockAcquireCounter.Inc()
	l.publish(context.WithoutCancel(ctx), syncbus.LockTopic(l.name))
}

func (l *Lock) publish(ctx context.Context, topic string) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, topic); err != nil {
		slog.Warn("settle: lock event publish failed", "lock", l.name, "topic", topic, "error", err)
	}
}
