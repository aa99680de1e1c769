// Package metrics holds the Prometheus collectors shared by the server.
package metrics

import (
	"sync"
	"time"

	"consultbot/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consultbot"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_transitions_total",
			Help:      "Conversation state transitions by target state.",
		},
		[]string{"from", "to"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_event_duration_seconds",
			Help:      "Time spent processing one user event.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	backendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Transient backend failures surfaced to the user with a retry.",
		},
		[]string{"op"},
	)

	bookingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking store mutations by operation and outcome.",
		},
		[]string{"op", "status"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_tasks_total",
			Help:      "Calendar sync task outcomes.",
		},
		[]string{"task", "status"},
	)

	activeConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Conversations with a running event loop.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			stateTransitions,
			eventDuration,
			backendErrors,
			bookingOps,
			syncTasks,
			activeConversations,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func SetActiveConversations(n int) {
	activeConversations.Set(float64(n))
}

// Recorder feeds orchestrator, booking and worker telemetry into the collectors.
type Recorder struct{}

func (Recorder) RecordTransition(from, to models.ConversationState) {
	stateTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (Recorder) RecordEvent(kind models.EventKind, d time.Duration) {
	eventDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (Recorder) RecordBackendError(op string) {
	backendErrors.WithLabelValues(op).Inc()
}

func (Recorder) RecordBookingOperation(op, status string) {
	bookingOps.WithLabelValues(op, status).Inc()
}

func (Recorder) RecordSyncTask(task, status string) {
	syncTasks.WithLabelValues(task, status).Inc()
}
