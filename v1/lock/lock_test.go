package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-settle/v1/clock"
	settleerrors "github.com/mirkobrombin/go-settle/v1/errors"
	"github.com/mirkobrombin/go-settle/v1/syncbus"
	"github.com/mirkobrombin/go-settle/v1/wait"
)

// waitForWaiters blocks until n goroutines are queued on l.
func waitForWaiters(t *testing.T, l *Lock, n int) {
	t.Helper()
	err := wait.Until(context.Background(), clock.Real(), func(context.Context) (bool, error) {
		return l.Waiters() == n, nil
	}, wait.WithTimeout(time.Second), wait.WithInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("expected %d waiters, have %d: %v", n, l.Waiters(), err)
	}
}

func TestAcquireRelease(t *testing.T) {
	l := New()
	ctx := context.Background()
	if l.IsHeld() {
		t.Fatal("new lock must be idle")
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !l.IsHeld() {
		t.Fatal("expected lock held")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if l.IsHeld() {
		t.Fatal("expected lock idle after release")
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
}

func TestReleaseUnheldIsIllegal(t *testing.T) {
	l := New()
	if err := l.Release(); !errors.Is(err, settleerrors.ErrIllegalState) {
		t.Fatalf("release of fresh lock: expected ErrIllegalState, got %v", err)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Release(); !errors.Is(err, settleerrors.ErrIllegalState) {
		t.Fatalf("double release: expected ErrIllegalState, got %v", err)
	}
	if l.IsHeld() {
		t.Fatal("failed release must not change state")
	}
}

func TestAwaitCheckingRejectsReacquire(t *testing.T) {
	l := New(WithAwaitChecking(true))
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	start := time.Now()
	if err := l.Acquire(ctx); !errors.Is(err, settleerrors.ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("rejected acquire must not wait")
	}
	if l.Waiters() != 0 {
		t.Fatal("rejected acquire must not queue")
	}

	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestWaitersAreGrantedInFIFOOrder(t *testing.T) {
	l := New()
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var (
		mu    sync.Mutex
		order []string
	)
	var g errgroup.Group
	for i, name := range []string{"A", "B", "C"} {
		g.Go(func() error {
			if err := l.Acquire(ctx); err != nil {
				return err
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return l.Release()
		})
		waitForWaiters(t, l, i+1)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("waiter: %v", err)
	}
	if got := order; len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("expected A B C, got %v", got)
	}
	if l.IsHeld() {
		t.Fatal("lock must be idle once every waiter released")
	}
}

func TestReleaseHandsOffWithoutGoingIdle(t *testing.T) {
	l := New()
	ctx := context.Background()
	_ = l.Acquire(ctx)

	acquired := make(chan struct{})
	proceed := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(acquired)
		<-proceed
		_ = l.Release()
	}()
	waitForWaiters(t, l, 1)

	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !l.IsHeld() {
		t.Fatal("ownership must pass to the waiter without an idle gap")
	}
	<-acquired
	if l.TryAcquire() {
		t.Fatal("TryAcquire must fail while the waiter owns the lock")
	}
	close(proceed)
}

func TestMutualExclusion(t *testing.T) {
	l := New()
	ctx := context.Background()
	var inside, maxInside atomic.Int32

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				err := l.WithLock(ctx, func(context.Context) error {
					n := inside.Add(1)
					if n > maxInside.Load() {
						maxInside.Store(n)
					}
					inside.Add(-1)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker: %v", err)
	}
	if maxInside.Load() != 1 {
		t.Fatalf("critical section entered concurrently: max %d", maxInside.Load())
	}
	if l.IsHeld() || l.Waiters() != 0 {
		t.Fatal("lock must end idle")
	}
}

func TestAcquireContextCancelledLeavesQueue(t *testing.T) {
	l := New()
	_ = l.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if l.Waiters() != 0 {
		t.Fatalf("cancelled waiter still queued")
	}

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	waitForWaiters(t, l, 1)
	_ = l.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining waiter was not granted")
	}
}

func TestIsHeldIsPure(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		if l.IsHeld() {
			t.Fatal("IsHeld changed state")
		}
	}
	_ = l.Acquire(context.Background())
	for i := 0; i < 5; i++ {
		if !l.IsHeld() {
			t.Fatal("IsHeld changed state")
		}
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	l := New()
	boom := errors.New("boom")
	if err := l.WithLock(context.Background(), func(context.Context) error { return boom }); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if l.IsHeld() {
		t.Fatal("lock must be released after WithLock")
	}
}

func TestBusEvents(t *testing.T) {
	bus := syncbus.NewInMemoryBus()
	ctx := context.Background()
	l := New(WithName("browser"), WithBus(bus))

	lockCh, err := bus.Subscribe(ctx, syncbus.LockTopic("browser"))
	if err != nil {
		t.Fatalf("subscribe lock: %v", err)
	}
	unlockCh, err := bus.Subscribe(ctx, syncbus.UnlockTopic("browser"))
	if err != nil {
		t.Fatalf("subscribe unlock: %v", err)
	}

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	select {
	case <-lockCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for lock event")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case <-unlockCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unlock event")
	}
}

func TestNameDefaultsToRandom(t *testing.T) {
	a, b := New(), New()
	if a.Name() == "" || a.Name() == b.Name() {
		t.Fatalf("expected distinct random names, got %q and %q", a.Name(), b.Name())
	}
	if New(WithName("x")).Name() != "x" {
		t.Fatal("WithName ignored")
	}
}

func TestCancelRacingReleasePassesOwnershipOn(t *testing.T) {
	for i := 0; i < 200; i++ {
		l := New()
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			err := l.Acquire(ctx)
			if err == nil {
				err = l.Release()
			}
			first <- err
		}()
		waitForWaiters(t, l, 1)

		second := make(chan error, 1)
		go func() { second <- l.Acquire(context.Background()) }()
		waitForWaiters(t, l, 2)

		released := make(chan error, 1)
		go func() { released <- l.Release() }()
		cancel()

		if err := <-released; err != nil {
			t.Fatalf("iteration %d: release: %v", i, err)
		}
		if err := <-first; err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("iteration %d: first waiter: %v", i, err)
		}
		select {
		case err := <-second:
			if err != nil {
				t.Fatalf("iteration %d: second waiter: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: second waiter never acquired", i)
		}
		if !l.IsHeld() || l.Waiters() != 0 {
			t.Fatalf("iteration %d: expected held lock with no waiters, held %v waiters %d", i, l.IsHeld(), l.Waiters())
		}
	}
}
