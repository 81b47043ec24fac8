package rpclog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsLog counts calls by method and outcome and observes their latency.
// Requests are ignored.
type MetricsLog struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func NewMetricsLog(reg prometheus.Registerer) (*MetricsLog, error) {
	m := &MetricsLog{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "web3client",
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls by method and status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "web3client",
			Name:      "rpc_call_duration_seconds",
			Help:      "JSON-RPC call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.calls, m.latency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *MetricsLog) LogRequest(Entry) {}

func (m *MetricsLog) LogResponse(e Entry) {
	status := "ok"
	if !e.OK() {
		status = "error"
	}
	m.calls.WithLabelValues(e.Method, status).Inc()
	m.latency.WithLabelValues(e.Method).Observe(e.Elapsed.Seconds())
}
