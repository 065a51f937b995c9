package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"shopifybridge/internal/api"
	"shopifybridge/internal/auth"
	"shopifybridge/internal/proxy"
	"shopifybridge/internal/store"
	"shopifybridge/internal/telemetry"
	"shopifybridge/internal/webhook"
	"shopifybridge/pkg/config"
	"shopifybridge/pkg/shopify"
)

type Dependencies struct {
	Cfg     config.Config
	Store   *store.Store
	Log     *zap.Logger
	Metrics *telemetry.Metrics

	// WebhookSeen suppresses retried deliveries. Optional.
	WebhookSeen *ttlcache.Cache[string, struct{}]

	// HTTPClient and ShopBaseURL are used for outbound Shopify calls; nil means defaults.
	HTTPClient  *http.Client
	ShopBaseURL func(shopDomain string) string
}

func NewRouter(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	cfg := deps.Cfg
	exchanger := shopify.OAuthExchanger{
		HTTPClient:  deps.HTTPClient,
		APIKey:      cfg.Shopify.APIKey,
		APISecret:   cfg.Shopify.APISecret,
		Scopes:      cfg.Shopify.Scopes,
		RedirectURL: cfg.Shopify.RedirectURL,
		BaseURL:     deps.ShopBaseURL,
	}
	opts := []auth.Option{
		auth.WithExchangeTimeout(cfg.Shopify.ExchangeTimeout),
		auth.WithMetrics(deps.Metrics),
		auth.WithLogger(log.Named("oauth")),
	}
	// Install-time webhook registration needs an externally reachable address.
	if strings.TrimSpace(cfg.PublicBaseURL) != "" {
		opts = append(opts, auth.WithRegistrar(auth.WebhookRegistrar{
			PublicBaseURL: cfg.PublicBaseURL,
			APIVersion:    cfg.Shopify.APIVersion,
			HTTPClient:    deps.HTTPClient,
			ShopBaseURL:   deps.ShopBaseURL,
		}))
	}
	oauth := auth.NewService(deps.Store, exchanger, cfg.Shopify.APISecret, opts...)
	authHandlers := auth.Handlers{Service: oauth, Log: log.Named("oauth")}

	proxyHandler := proxy.Handler{
		Secret:  cfg.Shopify.APISecret,
		Shops:   deps.Store,
		Log:     log.Named("proxy"),
		Metrics: deps.Metrics,
	}
	webhookHandler := webhook.Handler{
		Secret:  cfg.Shopify.WebhookSigningSecret(),
		Log:     log.Named("webhook"),
		Metrics: deps.Metrics,
		Seen:    deps.WebhookSeen,
	}

	r.Route("/shopify", func(r chi.Router) {
		r.Get("/install", authHandlers.Install)
		r.Get("/callback", authHandlers.Callback)
		r.Get("/proxy", proxyHandler.ServeHTTP)

		// Embedded admin frontend, called cross-origin with an App Bridge session token.
		r.Group(func(r chi.Router) {
			r.Use(api.CORSMiddleware(api.CORSOptions{AllowedOrigins: cfg.AllowedOrigins}))
			r.Use(api.SessionAuth(cfg, log.Named("session")))
			r.Method(http.MethodGet, "/session", auth.SessionHandler{Shops: deps.Store, Log: log.Named("session")})
			// Preflight is answered by CORSMiddleware; the route only has to exist.
			r.Options("/session", func(w http.ResponseWriter, r *http.Request) {})
		})
	})

	r.Post(auth.WebhookPath, webhookHandler.ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	})
	return r
}
