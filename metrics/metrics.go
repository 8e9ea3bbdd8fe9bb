// Package metrics provides Prometheus instrumentation for registry and bundle
// operations, and the HTTP server exposing it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

const (
	// Namespace is the Prometheus namespace for all registry metrics
	Namespace = "secret_registry"

	LabelOperation = "operation"
	LabelStatus    = "status"

	StatusSuccess = "success"

	OpRegister       = "register_secret"
	OpConfirm        = "confirm_receipt"
	OpClose          = "close_secret"
	OpGetSecret      = "get_secret"
	OpCanReconstruct = "can_reconstruct"
	OpIsParticipant  = "is_participant"
	OpHasConfirmed   = "has_confirmed"
)

var (
	// OperationsTotal counts registry operations. Status is "success" or the
	// error code of the rejection.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of registry operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of registry operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{LabelOperation},
	)

	ActiveSecrets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "secrets_active",
			Help:      "Number of registered secrets that are not closed",
		},
	)

	ReconstructableSecrets = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "quorum_reached_total",
			Help:      "Number of secrets whose confirmations reached the threshold",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_dropped_total",
			Help:      "Events not delivered to a slow subscriber",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Constant 1, labelled with the serving binary",
		},
		[]string{"service"},
	)

	ShareEncryptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bundle",
			Name:      "share_encryptions_total",
			Help:      "Per-participant share encryptions by status",
		},
		[]string{LabelStatus},
	)
)

// RecordOperation records the outcome and latency of a registry operation.
func RecordOperation(operation string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordShareEncryption counts one participant encryption.
func RecordShareEncryption(err error) {
	ShareEncryptions.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err == nil {
		return StatusSuccess
	}
	if code := interfaces.CodeOf(err); code != "" {
		return code
	}
	return string(interfaces.KindOf(err))
}
