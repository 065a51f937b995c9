package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopifybridge/pkg/config"
	"shopifybridge/pkg/shopify"
)

// SessionAuth validates Shopify embedded-app session tokens.
//
// Expected header:
// - Authorization: Bearer <JWT>
//
// Outside prod a request without a bearer token may name its shop with X-Shop-Domain
// so the admin frontend can be exercised locally without App Bridge.
func SessionAuth(cfg config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token := strings.TrimSpace(authz[7:])
				vs, err := shopify.VerifySessionToken(token, cfg.Shopify.APIKey, cfg.Shopify.APISecret, time.Now())
				if err != nil {
					log.Debug("session token rejected", zap.Error(err))
					WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), vs)))
				return
			}

			if !cfg.IsProd() {
				if shop, ok := shopify.NormalizeShopDomain(r.Header.Get("X-Shop-Domain")); ok {
					vs := &shopify.VerifiedSession{ShopDomain: shop}
					next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), vs)))
					return
				}
			}

			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token")
		})
	}
}
