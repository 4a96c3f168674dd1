package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend client metrics
	ClientRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_client_requests_total",
		Help: "Total number of requests sent to the ITSM backend",
	}, []string{"method", "endpoint", "code"})
	ClientRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itsm_client_request_duration_seconds",
		Help:    "Latency of requests sent to the ITSM backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// SLA monitor metrics
	MonitorPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_sla_monitor_polls_total",
		Help: "Total number of SLA violation polls, by result",
	}, []string{"result"})
	MonitorPollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "itsm_sla_monitor_poll_duration_seconds",
		Help:    "Duration of a single SLA violation poll",
		Buckets: prometheus.DefBuckets,
	})
	ViolationEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_sla_violation_events_total",
		Help: "Total number of SLA violation events emitted",
	}, []string{"type", "severity"})
	// Violations holds the counters of the last successful poll (open, resolved, critical).
	Violations = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "itsm_sla_violations",
		Help: "SLA violations seen by the last successful poll",
	}, []string{"state"})

	// Event sink metrics
	EventSinkWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_event_sink_writes_total",
		Help: "Total number of event sink writes, by sink and result",
	}, []string{"sink", "result"})
	EventSinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itsm_event_sink_write_duration_seconds",
		Help:    "Latency of event sink writes",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"sink"})
	EventSinkDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_event_sink_dropped_total",
		Help: "Total number of events dropped because a sink queue was full or its circuit was open",
	}, []string{"sink", "reason"})
	EventSinkQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "itsm_event_sink_queue_depth",
		Help: "Events waiting in a queued sink",
	}, []string{"sink"})
	// EventSinkCircuitState is 0 closed, 1 open, 2 half-open.
	EventSinkCircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "itsm_event_sink_circuit_state",
		Help: "Circuit breaker state per event sink",
	}, []string{"sink"})
	EventSinkConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "itsm_event_sink_connected",
		Help: "Whether the last write to a remote event sink succeeded",
	}, []string{"sink"})

	// Mail metrics
	MailSend = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_mail_send_total",
		Help: "Total number of mail sends, by result",
	}, []string{"result"})
	MailQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "itsm_mail_queue_depth",
		Help: "Mails waiting in the send queue",
	})

	// HTTP server metrics
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itsm_http_rate_limited_total",
		Help: "Total number of HTTP requests rejected by the rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(ClientRequests)
	prometheus.MustRegister(ClientRequestDuration)
	prometheus.MustRegister(MonitorPolls)
	prometheus.MustRegister(MonitorPollDuration)
	prometheus.MustRegister(ViolationEvents)
	prometheus.MustRegister(Violations)
	prometheus.MustRegister(EventSinkWrites)
	prometheus.MustRegister(EventSinkLatency)
	prometheus.MustRegister(EventSinkDropped)
	prometheus.MustRegister(EventSinkQueueDepth)
	prometheus.MustRegister(EventSinkCircuitState)
	prometheus.MustRegister(EventSinkConnected)
	prometheus.MustRegister(MailSend)
	prometheus.MustRegister(MailQueueDepth)
	prometheus.MustRegister(RateLimited)
}

var numericSegment = regexp.MustCompile(`/[0-9]+(/|$)`)

// EndpointLabel strips the query string and replaces numeric path segments
// with ":id" so that per-object URLs share one series.
func EndpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	for numericSegment.MatchString(endpoint) {
		endpoint = numericSegment.ReplaceAllString(endpoint, "/:id$1")
	}
	return endpoint
}

// ObserveClientRequest records a backend round trip. Its signature matches
// client.RequestObserver. status 0 is recorded as code "error".
func ObserveClientRequest(method, endpoint string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	ClientRequests.WithLabelValues(method, EndpointLabel(endpoint), code).Inc()
	ClientRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
