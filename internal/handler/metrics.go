package handler

import (
	"fmt"
	"net/http"

	"github.com/penletter/penletter/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "penletter_auth_attempts_total{result=\"success\"} %d\n", snap.AuthSuccess)
	writeMetric(w, "penletter_auth_attempts_total{result=\"invalid\"} %d\n", snap.AuthInvalid)
	writeMetric(w, "penletter_auth_attempts_total{result=\"error\"} %d\n", snap.AuthError)
	writeMetric(w, "penletter_password_hash_duration_seconds_count %d\n", snap.HashDurationCount)
	writeMetric(w, "penletter_password_hash_duration_seconds_sum %.6f\n", float64(snap.HashDurationTotalNs)/1e9)

	writeMetric(w, "penletter_publishes_total{status=\"completed\"} %d\n", snap.PublishesCompleted)
	writeMetric(w, "penletter_publishes_total{status=\"failed\"} %d\n", snap.PublishesFailed)
	writeMetric(w, "penletter_idempotent_replays_total %d\n", snap.IdempotentReplays)

	writeMetric(w, "penletter_deliveries_total{status=\"delivered\"} %d\n", snap.DeliveriesDelivered)
	writeMetric(w, "penletter_deliveries_total{status=\"skipped\"} %d\n", snap.DeliveriesSkipped)
	writeMetric(w, "penletter_deliveries_total{status=\"failed\"} %d\n", snap.DeliveriesFailed)

	writeMetric(w, "penletter_subscriptions_created_total %d\n", snap.SubscriptionsCreated)
	writeMetric(w, "penletter_subscriptions_confirmed_total %d\n", snap.SubscriptionsConfirmed)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
