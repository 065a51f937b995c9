// Package webhook authenticates Shopify webhook deliveries.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"shopifybridge/internal/api"
	"shopifybridge/internal/telemetry"
	"shopifybridge/pkg/shopify"
)

// MaxBodyBytes caps a delivery body. Shopify payloads are well below this.
const MaxBodyBytes = 5 << 20

// DedupeWindow is how long a delivery id is remembered for retry suppression.
const DedupeWindow = 10 * time.Minute

// Delivery is an authenticated webhook.
type Delivery struct {
	ID    string
	Topic string
	Shop  string
	Body  []byte
}

type Handler struct {
	// Secret is the webhook signing secret. An empty secret rejects every delivery.
	Secret  string
	Log     *zap.Logger
	Metrics *telemetry.Metrics

	// Seen suppresses Shopify retries of a delivery already acknowledged. Optional.
	Seen *ttlcache.Cache[string, struct{}]
}

// NewSeenCache returns a started dedupe cache; stop it with Stop.
func NewSeenCache() *ttlcache.Cache[string, struct{}] {
	c := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](DedupeWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go c.Start()
	return c
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The signature covers the exact bytes on the wire, so the body is never decoded first.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.Log.Error("read webhook body", zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error")
		return
	}

	signature := strings.TrimSpace(r.Header.Get("X-Shopify-Hmac-Sha256"))
	ok := shopify.VerifyWebhook(body, signature, h.Secret)
	h.Metrics.SignatureChecked("webhook", ok)
	if !ok {
		h.Log.Warn("shopify webhook verification failed",
			zap.String("shop", r.Header.Get("X-Shopify-Shop-Domain")),
			zap.Bool("has_signature", signature != ""),
		)
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")
		return
	}

	d := Delivery{
		ID:    deliveryID(r, body),
		Topic: NormalizeTopic(r.Header.Get("X-Shopify-Topic")),
		Shop:  strings.TrimSpace(r.Header.Get("X-Shopify-Shop-Domain")),
		Body:  body,
	}

	if h.Seen != nil {
		if _, dup := h.Seen.GetOrSet(d.ID, struct{}{}); dup {
			h.Log.Info("duplicate webhook delivery", zap.String("id", d.ID), zap.String("topic", d.Topic))
			writeOK(w)
			return
		}
	}

	h.Metrics.WebhookReceived(d.Topic)
	h.Log.Info("verified webhook",
		zap.String("topic", d.Topic),
		zap.String("shop", d.Shop),
		zap.String("id", d.ID),
		zap.Int("bytes", len(d.Body)),
	)
	writeOK(w)
}

// deliveryID prefers Shopify's webhook id and falls back to a hash of the payload.
func deliveryID(r *http.Request, body []byte) string {
	if id := strings.TrimSpace(r.Header.Get("X-Shopify-Webhook-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-Shopify-Event-Id")); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
