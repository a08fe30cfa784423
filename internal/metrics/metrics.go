// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Credential verification
	IncAuthAttempt(result string) // result: "success", "invalid", "error"
	ObserveHashDuration(duration time.Duration)

	// Newsletter publishing
	IncPublish(status string)  // status: "completed", "failed"
	IncDelivery(status string) // status: "delivered", "skipped", "failed"
	IncIdempotentReplay()

	// Subscriptions
	IncSubscriptionCreated()
	IncSubscriptionConfirmed()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
