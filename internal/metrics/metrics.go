// Package metrics holds the Prometheus collectors of the lock service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every recorder is then a
// no-op.
type Metrics struct {
	Commands        *prometheus.CounterVec
	VendorLatency   prometheus.Histogram
	Webhooks        *prometheus.CounterVec
	PhoneDecisions  *prometheus.CounterVec
	RequestsSwept   prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	MQTTPublishErrs prometheus.Counter
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockcrf_commands_total",
			Help: "Lock commands by source and outcome code",
		}, []string{"source", "outcome"}),
		VendorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lockcrf_vendor_call_seconds",
			Help:    "Latency of Nuki advanced action calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockcrf_webhooks_total",
			Help: "Vendor webhooks by event kind and outcome",
		}, []string{"kind", "outcome"}),
		PhoneDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockcrf_phone_decisions_total",
			Help: "Phone access evaluations by decision",
		}, []string{"decision"}),
		RequestsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockcrf_requests_swept_total",
			Help: "Request rows deleted by retention sweeps",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockcrf_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		}, []string{"route", "status"}),
		MQTTPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockcrf_mqtt_publish_errors_total",
			Help: "Failed MQTT log publications",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Commands, m.VendorLatency, m.Webhooks, m.PhoneDecisions,
		m.RequestsSwept, m.HTTPRequests, m.MQTTPublishErrs,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveCommand(source, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(source, outcome).Inc()
	if seconds > 0 {
		m.VendorLatency.Observe(seconds)
	}
}

func (m *Metrics) ObserveWebhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObservePhoneDecision(decision string) {
	if m == nil {
		return
	}
	m.PhoneDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RequestsSwept.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, fmt.Sprint(status)).Inc()
}

func (m *Metrics) IncMQTTError() {
	if m == nil {
		return
	}
	m.MQTTPublishErrs.Inc()
}
