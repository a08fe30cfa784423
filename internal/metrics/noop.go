package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncAuthAttempt is a no-op.
func (n *NoopRecorder) IncAuthAttempt(result string) {}

// ObserveHashDuration is a no-op.
func (n *NoopRecorder) ObserveHashDuration(duration time.Duration) {}

// IncPublish is a no-op.
func (n *NoopRecorder) IncPublish(status string) {}

// IncDelivery is a no-op.
func (n *NoopRecorder) IncDelivery(status string) {}

// IncIdempotentReplay is a no-op.
func (n *NoopRecorder) IncIdempotentReplay() {}

// IncSubscriptionCreated is a no-op.
func (n *NoopRecorder) IncSubscriptionCreated() {}

// IncSubscriptionConfirmed is a no-op.
func (n *NoopRecorder) IncSubscriptionConfirmed() {}
