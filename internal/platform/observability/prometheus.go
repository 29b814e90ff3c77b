package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partybot"

// Registry holds the collectors exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	counterVecs = map[string]*prometheus.CounterVec{
		"http_requests_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the control API.",
		}, []string{"method", "path", "status"}),
		"stream_connect_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connect_total",
			Help:      "Presence stream connection attempts.",
		}, []string{"outcome", "forced"}),
		"automation_action_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_action_total",
			Help:      "Automation side effects executed.",
		}, []string{"action", "outcome"}),
		"taxi_action_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "taxi_action_total",
			Help:      "Upstream calls made by taxi accounts.",
		}, []string{"action", "outcome"}),
		"feed_upgrade_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_upgrade_total",
			Help:      "Live feed websocket handshakes.",
		}, []string{"outcome"}),
		"feed_closed_total": prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_closed_total",
			Help:      "Live feed sessions that ended.",
		}, []string{"outcome"}),
	}

	histogramVecs = map[string]*prometheus.HistogramVec{
		"http_request_duration_seconds": prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of control API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
	}
)

func init() {
	for _, c := range counterVecs {
		Registry.MustRegister(c)
	}
	for _, h := range histogramVecs {
		Registry.MustRegister(h)
	}
	Registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// export forwards a datapoint to its collector. Unknown names and label
// sets that do not match the collector stay in the in-process counters only.
func export(name string, value float64, labels map[string]string) {
	if c, ok := counterVecs[name]; ok {
		if m, err := c.GetMetricWith(labels); err == nil && value >= 0 {
			m.Add(value)
		}
		return
	}
	if h, ok := histogramVecs[name]; ok {
		if m, err := h.GetMetricWith(labels); err == nil {
			m.Observe(value)
		}
	}
}

func resetExported() {
	for _, c := range counterVecs {
		c.Reset()
	}
	for _, h := range histogramVecs {
		h.Reset()
	}
}
