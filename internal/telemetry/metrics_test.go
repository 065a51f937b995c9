package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.SignatureChecked("webhook", true)
	m.SignatureChecked("webhook", false)
	m.SignatureChecked("webhook", false)
	m.OAuthCallback("installed")
	m.WebhookReceived("orders/create")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureChecks.WithLabelValues("webhook", "valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.signatureChecks.WithLabelValues("webhook", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oauthCallbacks.WithLabelValues("installed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("orders/create")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shopify_webhooks_received_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SignatureChecked("proxy", true)
	m.OAuthCallback("error")
	m.WebhookReceived("app/uninstalled")
}
