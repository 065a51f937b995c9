package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shopifybridge/pkg/shopify"
)

type webhookOptions struct {
	*rootOptions
	Topic   string
	Payload string
	ID      string
	DryRun  bool
}

func newWebhookCommand(root *rootOptions, webhookSecret string) *cobra.Command {
	opts := &webhookOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "POST a signed webhook delivery to /webhooks/shopify",
		Long: `Sign a JSON payload exactly as read from disk and deliver it.

Example:
  simshopify webhook --topic app/uninstalled --payload ./testdata/uninstalled.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendWebhook(cmd, opts, webhookSecret)
		},
	}
	cmd.Flags().StringVar(&opts.Topic, "topic", "app/uninstalled", "X-Shopify-Topic value")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "path to the payload file (default: {})")
	cmd.Flags().StringVar(&opts.ID, "id", "", "X-Shopify-Webhook-Id (default: random)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the signature instead of sending")
	return cmd
}

func sendWebhook(cmd *cobra.Command, opts *webhookOptions, webhookSecret string) error {
	body := []byte("{}")
	if opts.Payload != "" {
		b, err := os.ReadFile(opts.Payload)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		body = b
	}

	// The server verifies with SHOPIFY_WEBHOOK_SECRET when set, so sign with it too
	// unless --secret was given explicitly.
	secret := opts.Secret
	if webhookSecret != "" && !cmd.Flags().Changed("secret") {
		secret = webhookSecret
	}
	sig := shopify.SignWebhook(body, secret)
	if opts.DryRun {
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	target := strings.TrimRight(opts.BaseURL, "/") + "/webhooks/shopify"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Hmac-Sha256", sig)
	req.Header.Set("X-Shopify-Topic", opts.Topic)
	req.Header.Set("X-Shopify-Shop-Domain", opts.Shop)
	req.Header.Set("X-Shopify-Webhook-Id", id)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	return nil
}

func newProxyCommand(root *rootOptions) *cobra.Command {
	var pathPrefix, path string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Print a signed /shopify/proxy URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("shop", root.Shop)
			q.Set("path_prefix", pathPrefix)
			q.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))
			if path != "" {
				q.Set("path", path)
			}
			q.Set("signature", shopify.SignProxy(q, root.Secret))
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(root.BaseURL, "/")+"/shopify/proxy?"+q.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "/apps/affiliates", "proxy path_prefix")
	cmd.Flags().StringVar(&path, "path", "", "optional path parameter")
	return cmd
}

func newCallbackCommand(root *rootOptions) *cobra.Command {
	var state, code string

	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Print a signed /shopify/callback URL for a state issued by /shopify/install",
		Long: `Print a signed OAuth callback URL.

The code exchange still goes to the shop, so a full local run needs a
reachable token endpoint; this is mainly useful for exercising the state
and hmac checks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state == "" {
				return fmt.Errorf("missing --state")
			}
			q := url.Values{}
			q.Set("shop", root.Shop)
			q.Set("code", code)
			q.Set("state", state)
			q.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))
			q.Set("hmac", shopify.SignOAuthCallback(q, root.Secret))
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(root.BaseURL, "/")+"/shopify/callback?"+q.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state nonce from the install redirect")
	cmd.Flags().StringVar(&code, "code", "dev-code", "authorization code")
	return cmd
}
