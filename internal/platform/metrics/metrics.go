package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fulfillment"

type Ledger struct {
	Attempts        *prometheus.CounterVec
	Mutations       *prometheus.CounterVec
	HistoryFailures prometheus.Counter
}

func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_attempts_total",
			Help:      "Conditional stock write attempts by result.",
		}, []string{"result"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Stock mutations by outcome.",
		}, []string{"outcome"}),
		HistoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "history_append_failures_total",
			Help:      "Committed mutations whose history entry could not be written.",
		}),
	}
	reg.MustRegister(m.Attempts, m.Mutations, m.HistoryFailures)
	return m
}

type Saga struct {
	Outcomes      *prometheus.CounterVec
	Compensations *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

func NewSaga(reg prometheus.Registerer) *Saga {
	m := &Saga{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "outcomes_total",
			Help:      "Order saga results by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "compensations_total",
			Help:      "Compensating stock calls by result.",
		}, []string{"result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "resolutions_total",
			Help:      "Repeated stock calls after an unknown outcome, by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "notifications_total",
			Help:      "Best-effort notifications by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Outcomes, m.Compensations, m.Resolutions, m.Notifications)
	return m
}

type HTTP struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer, service string) *HTTP {
	m := &HTTP{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS)
	return m
}

// Middleware records count and latency per matched route.
func (m *HTTP) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
