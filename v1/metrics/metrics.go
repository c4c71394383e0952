package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquireCounter tracks granted lock acquisitions.
	LockAcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settle_lock_acquire_total",
		Help: "Total number of granted lock acquisitions",
	})
	// LockContendedCounter tracks acquisitions that had to queue.
	LockContendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settle_lock_contended_total",
		Help: "Total number of acquisitions that waited behind a holder",
	})
	// LockRejectedCounter tracks acquisitions refused with ErrAlreadyHeld.
	LockRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settle_lock_rejected_total",
		Help: "Total number of acquisitions rejected because the lock was held",
	})
	// LockIllegalReleaseCounter tracks releases of a lock that was not held.
	LockIllegalReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settle_lock_illegal_release_total",
		Help: "Total number of releases on an unheld lock",
	})
	// LockWaitersGauge reports the number of queued acquirers.
	LockWaitersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settle_lock_waiters",
		Help: "Current number of goroutines queued on locks",
	})
	// WaitCounter tracks finished waits by result (match, timeout, error).
	WaitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_wait_total",
		Help: "Total number of finished waits by result",
	}, []string{"result"})
	// WaitPollCounter tracks probe invocations.
	WaitPollCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settle_wait_polls_total",
		Help: "Total number of probe invocations",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the lock and wait metrics on the provided
// registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquireCounter,
		LockContendedCounter,
		LockRejectedCounter,
		LockIllegalReleaseCounter,
		LockWaitersGauge,
		WaitCounter,
		WaitPollCounter,
	)
}
