package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvest_containers_total",
			Help: "Total number of container entries in the registry by lifecycle state",
		},
		[]string{"state"},
	)

	RegistryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_registry_queue_depth",
			Help: "Pending commands in the container registry's command queue",
		},
	)

	// Task controller metrics
	TasksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_tasks_total",
			Help: "Total number of tasks tracked by the task controller",
		},
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_task_queue_depth",
			Help: "Pending commands in the task controller's command queue",
		},
	)

	// Follower pool metrics
	FollowersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_followers_active",
			Help: "Number of file-follower workers currently running",
		},
	)

	LinesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_lines_emitted_total",
			Help: "Total number of non-empty log lines handed to the output multiplexer",
		},
	)

	BytesReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_bytes_read_total",
			Help: "Total number of bytes consumed from followed files",
		},
	)

	// Output multiplexer metrics
	BatchesFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_batches_flushed_total",
			Help: "Total number of batches flushed to a broker output, by URI",
		},
		[]string{"output"},
	)

	BatchFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_batch_flush_duration_seconds",
			Help:    "Time taken to flush a batch to the broker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"output"},
	)

	BrokerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_broker_retries_total",
			Help: "Total number of batch send retries against a broker output",
		},
		[]string{"output"},
	)

	BrokerSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_broker_send_failures_total",
			Help: "Total number of failed batch sends against a broker output",
		},
		[]string{"output"},
	)

	// Control-plane client metrics
	ControlPlaneReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_controlplane_reconnects_total",
			Help: "Total number of reconnects to the control-plane event stream",
		},
	)

	ControlPlaneParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_controlplane_parse_failures_total",
			Help: "Total number of JSON parse failures on control-plane events",
		},
	)

	// HTTP surface metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_http_requests_total",
			Help: "Total number of requests to the read-only HTTP surface by path and status",
		},
		[]string{"path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_http_request_duration_seconds",
			Help:    "Read-only HTTP surface request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(ContainersTotal)
	prometheus.MustRegister(RegistryQueueDepth)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskQueueDepth)
	prometheus.MustRegister(FollowersActive)
	prometheus.MustRegister(LinesEmittedTotal)
	prometheus.MustRegister(BytesReadTotal)
	prometheus.MustRegister(BatchesFlushedTotal)
	prometheus.MustRegister(BatchFlushDuration)
	prometheus.MustRegister(BrokerRetriesTotal)
	prometheus.MustRegister(BrokerSendFailuresTotal)
	prometheus.MustRegister(ControlPlaneReconnectsTotal)
	prometheus.MustRegister(ControlPlaneParseFailuresTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
