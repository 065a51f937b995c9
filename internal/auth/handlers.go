package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"shopifybridge/internal/api"
	"shopifybridge/pkg/shopify"
)

type Handlers struct {
	Service *Service
	Log     *zap.Logger
}

func (h Handlers) Install(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.Service.Install(r.Context(), r.URL.Query().Get("shop"))
	if err != nil {
		if errors.Is(err, ErrInvalidShop) {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "missing or invalid shop")
			return
		}
		h.Log.Error("oauth install failed", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error")
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

type callbackResponse struct {
	OK    bool                `json:"ok"`
	Shop  string              `json:"shop"`
	Token shopify.AccessToken `json:"token"`
}

func (h Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Service.Callback(r.Context(), r.URL.Query())
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingParams):
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "missing shop, code or state")
		return
	case errors.Is(err, ErrInvalidState):
		api.WriteError(w, http.StatusBadRequest, "INVALID_STATE", "invalid or expired state")
		return
	case errors.Is(err, ErrStateMismatch):
		api.WriteError(w, http.StatusBadRequest, "STATE_MISMATCH", "state shop mismatch")
		return
	case errors.Is(err, ErrInvalidHMAC):
		api.WriteError(w, http.StatusBadRequest, "INVALID_HMAC", "invalid hmac")
		return
	default:
		h.Log.Error("oauth callback error", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(callbackResponse{OK: true, Shop: inst.Shop, Token: inst.Token})
}
