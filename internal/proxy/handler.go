// Package proxy serves Shopify App Proxy requests after verifying their query signature.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"shopifybridge/internal/api"
	"shopifybridge/internal/store"
	"shopifybridge/internal/telemetry"
	"shopifybridge/pkg/shopify"
)

// ShopLookup reports whether a shop has a usable token.
type ShopLookup interface {
	GetShopToken(ctx context.Context, shopDomain string) (shopify.AccessToken, error)
}

type Handler struct {
	Secret  string
	Shops   ShopLookup
	Log     *zap.Logger
	Metrics *telemetry.Metrics
}

var page = template.Must(template.New("proxy").Parse(
	`<div class="app-proxy" data-installed="{{.Installed}}">App Proxy: shop {{.Shop}} path {{.Path}}</div>`,
))

type view struct {
	Shop      string `json:"shop"`
	Path      string `json:"path"`
	Installed bool   `json:"installed"`
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ok := shopify.VerifyProxySignature(q, h.Secret)
	h.Metrics.SignatureChecked("proxy", ok)
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid app-proxy signature")
		return
	}

	v := view{
		Shop: strings.TrimSpace(q.Get("shop")),
		Path: strings.TrimSpace(q.Get("path_prefix")),
	}
	if p := strings.TrimSpace(q.Get("path")); p != "" {
		v.Path = p
	}
	if v.Shop == "" {
		v.Shop = "unknown-shop"
	}
	if v.Path == "" {
		v.Path = "/"
	}
	v.Installed = h.installed(r.Context(), v.Shop)

	if q.Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, v); err != nil {
		h.Log.Error("render app proxy page", zap.Error(err))
	}
}

func (h Handler) installed(ctx context.Context, shopDomain string) bool {
	if h.Shops == nil {
		return false
	}
	_, err := h.Shops.GetShopToken(ctx, shopDomain)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCredentialUnavailable):
		h.Log.Warn("app proxy shop has an unreadable credential", zap.String("shop", shopDomain))
	default:
		h.Log.Error("app proxy shop lookup", zap.String("shop", shopDomain), zap.Error(err))
	}
	return false
}
