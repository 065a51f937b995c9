package auth

import (
	"context"
	"net/http"
	"strings"

	"shopifybridge/pkg/shopify"
)

// WebhookPath is where registered webhooks are delivered.
const WebhookPath = "/webhooks/shopify"

// WebhookRegistrar subscribes installed shops to app/uninstalled on PublicBaseURL.
type WebhookRegistrar struct {
	PublicBaseURL string
	APIVersion    string
	HTTPClient    *http.Client

	// ShopBaseURL overrides https://{shop}; used in tests.
	ShopBaseURL func(shopDomain string) string
}

func (r WebhookRegistrar) Register(ctx context.Context, shopDomain string, tok shopify.AccessToken) error {
	c := shopify.Client{
		HTTPClient:  r.HTTPClient,
		ShopDomain:  shopDomain,
		AccessToken: tok.AccessToken,
		APIVersion:  r.APIVersion,
		BaseURL:     r.ShopBaseURL,
	}
	address := strings.TrimRight(strings.TrimSpace(r.PublicBaseURL), "/") + WebhookPath
	_, err := c.CreateWebhook(ctx, shopify.TopicAppUninstalled, address)
	return err
}
