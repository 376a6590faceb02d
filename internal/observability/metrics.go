package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the generation pipeline.
type Metrics struct {
	agentAttempts    *prometheus.CounterVec
	agentDuration    *prometheus.HistogramVec
	generations      *prometheus.CounterVec
	quotaRejections  *prometheus.CounterVec
	notifyFailures   prometheus.Counter
	logWriteFailures prometheus.Counter
	rateLimited      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves the collectors unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		agentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "agent_attempts_total",
			Help:      "Agent invocation attempts by agent and outcome.",
		}, []string{"agent", "outcome"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resumeagent",
			Name:      "agent_attempt_duration_seconds",
			Help:      "Wall time of a single agent attempt.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"agent"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "generations_total",
			Help:      "Finished generation submissions by result.",
		}, []string{"result"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "quota_rejections_total",
			Help:      "Submissions rejected by the monthly quota, by phase.",
		}, []string{"phase"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "status_notify_failures_total",
			Help:      "Status notifications that could not be delivered.",
		}),
		logWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "execution_log_write_failures_total",
			Help:      "Execution log rows that could not be persisted.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumeagent",
			Name:      "rate_limited_requests_total",
			Help:      "HTTP requests rejected by the per-client rate limiter, by route.",
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.agentAttempts, m.agentDuration, m.generations,
			m.quotaRejections, m.notifyFailures, m.logWriteFailures, m.rateLimited)
	}
	return m
}

// ObserveAttempt records one agent attempt.
func (m *Metrics) ObserveAttempt(agent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.agentAttempts.WithLabelValues(agent, outcome).Inc()
	m.agentDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}

// GenerationFinished records the result of a submission: completed, failed or quota_exceeded.
func (m *Metrics) GenerationFinished(result string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(result).Inc()
}

// QuotaRejected records a quota rejection at admission or finalization.
func (m *Metrics) QuotaRejected(phase string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(phase).Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) LogWriteFailed() {
	if m == nil {
		return
	}
	m.logWriteFailures.Inc()
}

// RateLimited records a request rejected by the rate limiter.
func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// AgentAttempts exposes the attempt counter for assertions.
func (m *Metrics) AgentAttempts() *prometheus.CounterVec {
	return m.agentAttempts
}

// Generations exposes the generation counter for assertions.
func (m *Metrics) Generations() *prometheus.CounterVec {
	return m.generations
}

// LogWriteFailures exposes the log write failure counter for assertions.
func (m *Metrics) LogWriteFailures() prometheus.Counter {
	return m.logWriteFailures
}

// QuotaRejections exposes the quota rejection counter for assertions.
func (m *Metrics) QuotaRejections() *prometheus.CounterVec {
	return m.quotaRejections
}

// RateLimitedRequests exposes the rate limiter rejection counter for assertions.
func (m *Metrics) RateLimitedRequests() *prometheus.CounterVec {
	return m.rateLimited
}
