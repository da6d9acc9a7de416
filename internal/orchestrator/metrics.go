package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_operations_total",
		Help: "Initiate and Complete calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_notifications_total",
		Help: "Reconciled notifications by operation and outcome.",
	}, []string{"operation", "outcome"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_rejections_total",
		Help: "Calls rejected before gateway contact, by operation and reason.",
	}, []string{"operation", "reason"})

	callDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_call_duration_seconds",
		Help:    "Duration of Initiate, Complete and Reconcile calls, gateway I/O included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// GetOperationsTotal returns the operations counter.
func GetOperationsTotal() *prometheus.CounterVec { return operationsTotal }

// GetNotificationsTotal returns the notifications counter.
func GetNotificationsTotal() *prometheus.CounterVec { return notificationsTotal }

// GetRejectionsTotal returns the rejections counter.
func GetRejectionsTotal() *prometheus.CounterVec { return rejectionsTotal }

// GetCallDurationSeconds returns the call duration histogram.
func GetCallDurationSeconds() *prometheus.HistogramVec { return callDurationSeconds }

func observeDuration(method string, start time.Time) {
	callDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
