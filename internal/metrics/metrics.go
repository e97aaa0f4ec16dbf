package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	EmailsEnqueued  *prometheus.CounterVec
	EmailsSent      *prometheus.CounterVec
	EmailsFailed    *prometheus.CounterVec
	EmailRetries    *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec
	BrokerUp        prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_jobs_enqueued_total",
			Help: "Total number of email jobs accepted by the queue.",
		}, []string{"type"}),

		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of successfully sent emails.",
		}, []string{"type", "mode"}),

		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total number of emails that permanently failed.",
		}, []string{"type", "mode"}),

		EmailRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_job_retries_total",
			Help: "Total number of retries scheduled for queued email jobs.",
		}, []string{"type"}),

		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "email_dispatch_seconds",
			Help:    "Latency of one dispatch attempt, from handler start to transport ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		BrokerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_up",
			Help: "1 when the broker connection is ready, 0 otherwise.",
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "email_queue_jobs",
			Help: "Current number of jobs in the email queue by state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.EmailsEnqueued,
		m.EmailsSent,
		m.EmailsFailed,
		m.EmailRetries,
		m.DispatchLatency,
		m.BrokerUp,
		m.QueueDepth,
	)

	return m
}

func (m *Metrics) Enqueued(jobType string) {
	if m == nil {
		return
	}
	m.EmailsEnqueued.WithLabelValues(jobType).Inc()
}

// Sent records a successful send. latency is skipped when zero.
func (m *Metrics) Sent(jobType string, mode domain.DeliveryMode, latency time.Duration) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(jobType, string(mode)).Inc()
	if latency > 0 {
		m.DispatchLatency.WithLabelValues(jobType).Observe(latency.Seconds())
	}
}

func (m *Metrics) Failed(jobType string, mode domain.DeliveryMode) {
	if m == nil {
		return
	}
	m.EmailsFailed.WithLabelValues(jobType, string(mode)).Inc()
}

func (m *Metrics) Retried(jobType string) {
	if m == nil {
		return
	}
	m.EmailRetries.WithLabelValues(jobType).Inc()
}

func (m *Metrics) SetBrokerUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BrokerUp.Set(1)
	} else {
		m.BrokerUp.Set(0)
	}
}

// SetQueueStats publishes the non-cumulative parts of a stats snapshot.
func (m *Metrics) SetQueueStats(s domain.QueueStats) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues("waiting").Set(float64(s.Waiting))
	m.QueueDepth.WithLabelValues("active").Set(float64(s.Active))
	m.QueueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
}
