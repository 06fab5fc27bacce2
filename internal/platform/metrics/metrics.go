package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthOperations     *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	BackendFailures    *prometheus.CounterVec
	OrphanedUploads    prometheus.Counter
	XPCredited         prometheus.Counter
	ActivityDropped    prometheus.Counter
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studygenie_auth_operations_total",
			Help: "Authentication operations by operation and result",
		}, []string{"operation", "result"}),
		SessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studygenie_session_transitions_total",
			Help: "Session state transitions by resulting status",
		}, []string{"status"}),
		BackendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studygenie_backend_failures_total",
			Help: "Failed backend calls by operation and error code",
		}, []string{"operation", "code"}),
		OrphanedUploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "studygenie_orphaned_uploads_total",
			Help: "Uploaded objects left without a metadata record",
		}),
		XPCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "studygenie_xp_credited_total",
			Help: "Experience points credited to profiles",
		}),
		ActivityDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "studygenie_activity_events_dropped_total",
			Help: "Activity events dropped because the async buffer was full",
		}),
	}
}

// IncrementAuthOperation counts one auth operation with result "ok" or "error".
func (m *Metrics) IncrementAuthOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuthOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncrementSessionTransition(status string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementBackendFailure(operation, code string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncrementOrphanedUploads() {
	if m == nil {
		return
	}
	m.OrphanedUploads.Inc()
}

func (m *Metrics) AddXPCredited(xp int) {
	if m == nil || xp <= 0 {
		return
	}
	m.XPCredited.Add(float64(xp))
}

func (m *Metrics) IncrementActivityDropped() {
	if m == nil {
		return
	}
	m.ActivityDropped.Inc()
}
