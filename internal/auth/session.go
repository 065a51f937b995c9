package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"shopifybridge/internal/api"
	"shopifybridge/internal/store"
	"shopifybridge/pkg/shopify"
)

// TokenReader is the read side of store.Store.
type TokenReader interface {
	GetShopToken(ctx context.Context, shopDomain string) (shopify.AccessToken, error)
}

// SessionHandler tells the embedded admin whether its shop has completed OAuth.
// It never returns the token itself.
type SessionHandler struct {
	Shops TokenReader
	Log   *zap.Logger
}

type sessionResponse struct {
	Shop      string `json:"shop"`
	Installed bool   `json:"installed"`
	Scope     string `json:"scope,omitempty"`
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vs := api.SessionFromContext(r.Context())
	if vs == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token")
		return
	}

	resp := sessionResponse{Shop: vs.ShopDomain}
	tok, err := h.Shops.GetShopToken(r.Context(), vs.ShopDomain)
	switch {
	case err == nil:
		resp.Installed = true
		resp.Scope = tok.Scope
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCredentialUnavailable):
		// The merchant has to reinstall; report it like a missing install.
		h.Log.Warn("session shop credential unavailable", zap.String("shop", vs.ShopDomain))
	default:
		h.Log.Error("session shop lookup", zap.String("shop", vs.ShopDomain), zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error")
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
