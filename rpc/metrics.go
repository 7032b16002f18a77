package rpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the per-command request metrics.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the request metrics under namespace. Call Register to
// expose them.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ipfshttp"
	}
	return &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total number of RPC commands sent to the node, by HTTP status code",
			},
			[]string{"command", "code"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Time until response headers were received",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Requests, m.Duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// code 0 means the request never produced a response.
func (m *Metrics) observe(command string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.WithLabelValues(command, label).Inc()
	m.Duration.WithLabelValues(command).Observe(d.Seconds())
}
