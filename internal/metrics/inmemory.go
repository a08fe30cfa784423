package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AuthSuccess            uint64
	AuthInvalid            uint64
	AuthError              uint64
	HashDurationCount      uint64
	HashDurationTotalNs    int64
	PublishesCompleted     uint64
	PublishesFailed        uint64
	DeliveriesDelivered    uint64
	DeliveriesSkipped      uint64
	DeliveriesFailed       uint64
	IdempotentReplays      uint64
	SubscriptionsCreated   uint64
	SubscriptionsConfirmed uint64
}

// InMemoryRecorder stores metrics in memory. It backs GET /metrics and tests.
type InMemoryRecorder struct {
	authSuccess            uint64
	authInvalid            uint64
	authError              uint64
	hashDurationCount      uint64
	hashDurationTotalNs    int64
	publishesCompleted     uint64
	publishesFailed        uint64
	deliveriesDelivered    uint64
	deliveriesSkipped      uint64
	deliveriesFailed       uint64
	idempotentReplays      uint64
	subscriptionsCreated   uint64
	subscriptionsConfirmed uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		AuthSuccess:            atomic.LoadUint64(&m.authSuccess),
		AuthInvalid:            atomic.LoadUint64(&m.authInvalid),
		AuthError:              atomic.LoadUint64(&m.authError),
		HashDurationCount:      atomic.LoadUint64(&m.hashDurationCount),
		HashDurationTotalNs:    atomic.LoadInt64(&m.hashDurationTotalNs),
		PublishesCompleted:     atomic.LoadUint64(&m.publishesCompleted),
		PublishesFailed:        atomic.LoadUint64(&m.publishesFailed),
		DeliveriesDelivered:    atomic.LoadUint64(&m.deliveriesDelivered),
		DeliveriesSkipped:      atomic.LoadUint64(&m.deliveriesSkipped),
		DeliveriesFailed:       atomic.LoadUint64(&m.deliveriesFailed),
		IdempotentReplays:      atomic.LoadUint64(&m.idempotentReplays),
		SubscriptionsCreated:   atomic.LoadUint64(&m.subscriptionsCreated),
		SubscriptionsConfirmed: atomic.LoadUint64(&m.subscriptionsConfirmed),
	}
}

// IncAuthAttempt increments the counter for the given verification result.
// Unknown results are counted as errors.
func (m *InMemoryRecorder) IncAuthAttempt(result string) {
	switch result {
	case "success":
		atomic.AddUint64(&m.authSuccess, 1)
	case "invalid":
		atomic.AddUint64(&m.authInvalid, 1)
	default:
		atomic.AddUint64(&m.authError, 1)
	}
}

// ObserveHashDuration records the duration of one password hash comparison.
func (m *InMemoryRecorder) ObserveHashDuration(duration time.Duration) {
	atomic.AddUint64(&m.hashDurationCount, 1)
	atomic.AddInt64(&m.hashDurationTotalNs, duration.Nanoseconds())
}

// IncPublish increments the publish counter for status.
func (m *InMemoryRecorder) IncPublish(status string) {
	if status == "completed" {
		atomic.AddUint64(&m.publishesCompleted, 1)
		return
	}
	atomic.AddUint64(&m.publishesFailed, 1)
}

// IncDelivery increments the per-recipient delivery counter for status.
func (m *InMemoryRecorder) IncDelivery(status string) {
	switch status {
	case "delivered":
		atomic.AddUint64(&m.deliveriesDelivered, 1)
	case "skipped":
		atomic.AddUint64(&m.deliveriesSkipped, 1)
	default:
		atomic.AddUint64(&m.deliveriesFailed, 1)
	}
}

// IncIdempotentReplay increments the replayed response counter.
func (m *InMemoryRecorder) IncIdempotentReplay() {
	atomic.AddUint64(&m.idempotentReplays, 1)
}

// IncSubscriptionCreated increments the pending subscription counter.
func (m *InMemoryRecorder) IncSubscriptionCreated() {
	atomic.AddUint64(&m.subscriptionsCreated, 1)
}

// IncSubscriptionConfirmed increments the confirmed subscription counter.
func (m *InMemoryRecorder) IncSubscriptionConfirmed() {
	atomic.AddUint64(&m.subscriptionsConfirmed, 1)
}
