package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifybridge/internal/credential"
	"shopifybridge/internal/store"
	"shopifybridge/internal/telemetry"
	"shopifybridge/pkg/config"
	"shopifybridge/pkg/shopify"
)

const (
	apiKey    = "app-key"
	apiSecret = "app-secret"
	shop      = "demo.myshopify.com"
)

type fixture struct {
	router    http.Handler
	store     *store.Store
	shopify   *httptest.Server
	exchanges atomic.Int32
	webhooks  atomic.Int32
}

func newFixture(t *testing.T, publicBaseURL string) *fixture {
	t.Helper()
	f := &fixture{}

	f.shopify = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/oauth/access_token":
			f.exchanges.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "code-123", r.PostForm.Get("code"))
			assert.Equal(t, apiKey, r.PostForm.Get("client_id"))
			assert.Equal(t, apiSecret, r.PostForm.Get("client_secret"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"shpat_test","scope":"read_products"}`))
		case "/admin/api/2025-10/webhooks.json":
			f.webhooks.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"webhook":{"id":1}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.shopify.Close)

	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	sealer, err := credential.NewSealer(config.CredentialEncrypted, "test-passphrase")
	require.NoError(t, err)
	f.store = store.New(mem, sealer, store.WithStateTTL(10*time.Minute))

	cfg := config.Config{
		AppEnv:        "test",
		PublicBaseURL: publicBaseURL,
		Shopify: config.ShopifyConfig{
			APIKey:          apiKey,
			APISecret:       apiSecret,
			Scopes:          "read_products",
			RedirectURL:     "http://localhost:4000/shopify/callback",
			APIVersion:      "2025-10",
			ExchangeTimeout: 5 * time.Second,
		},
		AllowedOrigins: []string{"https://admin.example.com"},
	}
	f.router = NewRouter(Dependencies{
		Cfg:         cfg,
		Store:       f.store,
		Metrics:     telemetry.NewMetrics(),
		ShopBaseURL: func(string) string { return f.shopify.URL },
	})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) install(t *testing.T) string {
	t.Helper()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/shopify/install?shop="+shop, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/admin/oauth/authorize", loc.Path)
	assert.Equal(t, apiKey, loc.Query().Get("client_id"))
	assert.Equal(t, "read_products", loc.Query().Get("scope"))
	assert.Equal(t, "http://localhost:4000/shopify/callback", loc.Query().Get("redirect_uri"))

	state := loc.Query().Get("state")
	require.Regexp(t, `^[0-9a-f]{32}$`, state)
	return state
}

func callbackRequest(state string) *http.Request {
	q := url.Values{
		"shop":      {shop},
		"code":      {"code-123"},
		"state":     {state},
		"timestamp": {"1700000000"},
		"host":      {"YWRtaW4uc2hvcGlmeS5jb20vc3RvcmUvZGVtbw"},
	}
	q.Set("hmac", shopify.SignOAuthCallback(q, apiSecret))
	return httptest.NewRequest(http.MethodGet, "/shopify/callback?"+q.Encode(), nil)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Message
}

func TestOAuthFlow_InstallCallbackReplay(t *testing.T) {
	f := newFixture(t, "")
	state := f.install(t)

	rec := f.do(callbackRequest(state))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		OK    bool   `json:"ok"`
		Shop  string `json:"shop"`
		Token struct {
			AccessToken string `json:"access_token"`
			Scope       string `json:"scope"`
		} `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, shop, body.Shop)
	assert.Equal(t, "shpat_test", body.Token.AccessToken)
	assert.Equal(t, "read_products", body.Token.Scope)

	tok, err := f.store.GetShopToken(context.Background(), shop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_test", tok.AccessToken)

	replay := f.do(callbackRequest(state))
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Equal(t, "invalid or expired state", errorMessage(t, replay))
	assert.EqualValues(t, 1, f.exchanges.Load())
	assert.Zero(t, f.webhooks.Load())
}

func TestOAuthFlow_RegistersWebhookWithPublicBaseURL(t *testing.T) {
	f := newFixture(t, "https://bridge.example.com")
	rec := f.do(callbackRequest(f.install(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, f.webhooks.Load())
}

func TestOAuthFlow_Rejections(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/shopify/install", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/shopify/install?shop=evil.example.com", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := callbackRequest(f.install(t))
	q := req.URL.Query()
	q.Set("hmac", strings.Repeat("0", 64))
	req.URL.RawQuery = q.Encode()
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid hmac", errorMessage(t, rec))
	assert.Zero(t, f.exchanges.Load())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/shopify/callback?shop="+shop+"&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRoute(t *testing.T) {
	f := newFixture(t, "")
	payload := []byte(`{"hello":"world"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(string(payload)))
	req.Header.Set("X-Shopify-Hmac-Sha256", shopify.SignWebhook(payload, apiSecret))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(string(payload)))
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid signature", errorMessage(t, rec))
}

func TestProxyRoute(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/shopify/proxy?shop=test-shop.myshopify.com&path=/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	q := url.Values{"shop": {shop}, "path_prefix": {"/apps/aff"}, "timestamp": {"1700000000"}}
	q.Set("signature", shopify.SignProxy(q, apiSecret))
	rec = f.do(httptest.NewRequest(http.MethodGet, "/shopify/proxy?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), shop)
}

func TestSessionRoute(t *testing.T) {
	f := newFixture(t, "")
	require.Equal(t, http.StatusOK, f.do(callbackRequest(f.install(t))).Code)

	claims := shopify.SessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Audience:  jwt.ClaimStrings{apiKey},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Dest: "https://" + shop,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/shopify/session", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"shop":"demo.myshopify.com","installed":true,"scope":"read_products"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "shpat_test")

	req = httptest.NewRequest(http.MethodGet, "/shopify/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	// Non-prod fallback for local development.
	req = httptest.NewRequest(http.MethodGet, "/shopify/session", nil)
	req.Header.Set("X-Shop-Domain", "fresh.myshopify.com")
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"shop":"fresh.myshopify.com","installed":false}`, rec.Body.String())

	preflight := httptest.NewRequest(http.MethodOptions, "/shopify/session", nil)
	preflight.Header.Set("Origin", "https://admin.example.com")
	preflight.Header.Set("Access-Control-Request-Method", "GET")
	rec = f.do(preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
