package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifybridge/pkg/config"
	"shopifybridge/pkg/shopify"
)

func run(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProxyCommand_SignsQuery(t *testing.T) {
	out, err := run(t, config.Config{HTTPAddr: ":4000"}, "proxy", "--secret", "s", "--shop", "demo.myshopify.com")
	require.NoError(t, err)

	u, err := url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "/shopify/proxy", u.Path)
	assert.True(t, shopify.VerifyProxySignature(u.Query(), "s"))
}

func TestCallbackCommand(t *testing.T) {
	_, err := run(t, config.Config{HTTPAddr: ":4000"}, "callback", "--secret", "s")
	require.Error(t, err)

	out, err := run(t, config.Config{HTTPAddr: ":4000"}, "callback", "--secret", "s", "--state", "abc")
	require.NoError(t, err)
	u, err := url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "abc", u.Query().Get("state"))
	assert.True(t, shopify.VerifyOAuthCallback(u.Query(), "s"))
}

func TestWebhookCommand_Delivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		if !shopify.VerifyWebhook(body.Bytes(), r.Header.Get("X-Shopify-Hmac-Sha256"), "whsec") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "app/uninstalled", r.Header.Get("X-Shopify-Topic"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := config.Config{HTTPAddr: ":4000", Shopify: config.ShopifyConfig{APISecret: "app", WebhookSecret: "whsec"}}
	out, err := run(t, cfg, "webhook", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "200 ok\n", out)

	_, err = run(t, cfg, "webhook", "--base-url", srv.URL, "--secret", "wrong")
	assert.Error(t, err)
}

func TestRequiresSecret(t *testing.T) {
	_, err := run(t, config.Config{HTTPAddr: ":4000"}, "proxy")
	assert.ErrorContains(t, err, "missing --secret")
}
