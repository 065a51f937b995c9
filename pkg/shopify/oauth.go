package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuthExchanger builds authorize URLs and trades authorization codes for offline access tokens.
type OAuthExchanger struct {
	HTTPClient  *http.Client
	APIKey      string
	APISecret   string
	Scopes      string
	RedirectURL string

	// BaseURL returns the origin for a shop. Defaults to https://{shop}.
	BaseURL func(shopDomain string) string
}

// AccessToken is the payload returned by /admin/oauth/access_token.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

var ErrEmptyAccessToken = errors.New("shopify token exchange returned empty access_token")

func (o OAuthExchanger) config(shopDomain string) *oauth2.Config {
	base := shopOrigin(o.BaseURL, shopDomain)
	cfg := &oauth2.Config{
		ClientID:     o.APIKey,
		ClientSecret: o.APISecret,
		RedirectURL:  o.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/admin/oauth/authorize",
			TokenURL:  base + "/admin/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// Shopify expects a single comma-separated scope value.
	if s := strings.TrimSpace(o.Scopes); s != "" {
		cfg.Scopes = []string{s}
	}
	return cfg
}

// AuthorizeURL is where the merchant is sent to approve the install; state is echoed back on callback.
func (o OAuthExchanger) AuthorizeURL(shopDomain, state string) string {
	return o.config(shopDomain).AuthCodeURL(state)
}

// ExchangeCodeForToken redeems a single-use authorization code. It is never retried.
func (o OAuthExchanger) ExchangeCodeForToken(ctx context.Context, shopDomain, code string) (AccessToken, error) {
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := o.config(shopDomain).Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return AccessToken{}, fmt.Errorf("shopify token exchange failed: status=%d", re.Response.StatusCode)
		}
		return AccessToken{}, fmt.Errorf("shopify token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return AccessToken{}, ErrEmptyAccessToken
	}

	scope, _ := tok.Extra("scope").(string)
	return AccessToken{AccessToken: tok.AccessToken, Scope: scope}, nil
}

func shopOrigin(base func(string) string, shopDomain string) string {
	if base != nil {
		return strings.TrimRight(base(shopDomain), "/")
	}
	return "https://" + shopDomain
}
