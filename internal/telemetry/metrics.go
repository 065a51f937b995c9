package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the Shopify handlers record into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	signatureChecks *prometheus.CounterVec
	oauthCallbacks  *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		signatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopify_signature_checks_total",
			Help: "Signature verifications by kind (webhook, proxy, oauth) and result.",
		}, []string{"kind", "result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopify_oauth_callbacks_total",
			Help: "OAuth callback outcomes.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopify_webhooks_received_total",
			Help: "Authenticated webhook deliveries by topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(
		m.signatureChecks,
		m.oauthCallbacks,
		m.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SignatureChecked(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.signatureChecks.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) OAuthCallback(outcome string) {
	if m == nil {
		return
	}
	m.oauthCallbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WebhookReceived(topic string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(topic).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
