// Command simshopify plays Shopify's side of the trust boundary against a local server:
// it signs webhook deliveries, App Proxy requests and OAuth callbacks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shopifybridge/pkg/config"
)

type rootOptions struct {
	BaseURL string
	Secret  string
	Shop    string
}

func newRootCommand(cfg config.Config) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "simshopify",
		Short:         "Send Shopify-signed requests to a local shopifybridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Secret == "" {
				return fmt.Errorf("missing --secret (or SHOPIFY_API_SECRET)")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "http://localhost"+cfg.HTTPAddr, "shopifybridge base url")
	cmd.PersistentFlags().StringVar(&opts.Secret, "secret", cfg.Shopify.APISecret, "signing secret")
	cmd.PersistentFlags().StringVar(&opts.Shop, "shop", "example.myshopify.com", "shop domain")

	cmd.AddCommand(newWebhookCommand(opts, cfg.Shopify.WebhookSecret))
	cmd.AddCommand(newProxyCommand(opts))
	cmd.AddCommand(newCallbackCommand(opts))
	return cmd
}

func main() {
	if err := newRootCommand(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "simshopify: %v\n", err)
		os.Exit(1)
	}
}
