// Package auth runs the Shopify OAuth install flow: issue a state nonce, redirect the
// merchant, then validate the callback and persist the exchanged offline token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"shopifybridge/internal/store"
	"shopifybridge/internal/telemetry"
	"shopifybridge/pkg/shopify"
)

var (
	ErrInvalidShop   = errors.New("auth: missing or invalid shop")
	ErrMissingParams = errors.New("auth: missing shop, code or state")
	ErrInvalidState  = errors.New("auth: invalid or expired state")
	ErrStateMismatch = errors.New("auth: state shop mismatch")
	ErrInvalidHMAC   = errors.New("auth: invalid hmac")
	ErrExchange      = errors.New("auth: token exchange failed")
)

// TokenStore is the part of store.Store the flow needs.
type TokenStore interface {
	SaveState(ctx context.Context, nonce, shopDomain string) error
	ConsumeState(ctx context.Context, nonce string) (string, error)
	SaveShopToken(ctx context.Context, shopDomain string, tok shopify.AccessToken) error
}

// Exchanger is implemented by shopify.OAuthExchanger.
type Exchanger interface {
	AuthorizeURL(shopDomain, state string) string
	ExchangeCodeForToken(ctx context.Context, shopDomain, code string) (shopify.AccessToken, error)
}

// Registrar subscribes a freshly installed shop to the webhooks the service handles.
type Registrar interface {
	Register(ctx context.Context, shopDomain string, tok shopify.AccessToken) error
}

// Installation is the result of a successful callback.
type Installation struct {
	Shop  string
	Token shopify.AccessToken
}

type Service struct {
	store     TokenStore
	exchanger Exchanger
	apiSecret string

	exchangeTimeout time.Duration
	registrar       Registrar
	metrics         *telemetry.Metrics
	log             *zap.Logger
	newNonce        func() (string, error)
}

type Option func(*Service)

// WithExchangeTimeout bounds the code-for-token call. Zero leaves it to the HTTP client.
func WithExchangeTimeout(d time.Duration) Option {
	return func(s *Service) { s.exchangeTimeout = d }
}

func WithRegistrar(r Registrar) Option {
	return func(s *Service) { s.registrar = r }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(ts TokenStore, ex Exchanger, apiSecret string, opts ...Option) *Service {
	s := &Service{
		store:     ts,
		exchanger: ex,
		apiSecret: apiSecret,
		log:       zap.NewNop(),
		newNonce:  randomHex16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Install issues and stores a state nonce for shop and returns the authorize URL to redirect to.
func (s *Service) Install(ctx context.Context, shopParam string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "shopify.oauth.install")
	defer span.End()

	shopDomain, ok := shopify.NormalizeShopDomain(shopParam)
	if !ok {
		span.SetStatus(codes.Error, "invalid shop")
		return "", ErrInvalidShop
	}
	span.SetAttributes(attribute.String("shopify.shop", shopDomain))

	nonce, err := s.newNonce()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.store.SaveState(ctx, nonce, shopDomain); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save state")
		return "", err
	}

	s.log.Info("oauth install started", zap.String("shop", shopDomain))
	return s.exchanger.AuthorizeURL(shopDomain, nonce), nil
}

// Callback validates a redirect from Shopify and stores the exchanged token.
// The nonce is consumed first, so every outcome after that point burns it.
func (s *Service) Callback(ctx context.Context, query url.Values) (Installation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "shopify.oauth.callback")
	defer span.End()

	inst, outcome, err := s.callback(ctx, query)
	s.metrics.OAuthCallback(outcome)
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
		return Installation{}, err
	}
	span.SetAttributes(attribute.String("shopify.shop", inst.Shop))
	return inst, nil
}

func (s *Service) callback(ctx context.Context, query url.Values) (Installation, string, error) {
	shopDomain := strings.TrimSpace(query.Get("shop"))
	code := strings.TrimSpace(query.Get("code"))
	state := strings.TrimSpace(query.Get("state"))
	if shopDomain == "" || code == "" || state == "" {
		return Installation{}, "missing_params", ErrMissingParams
	}

	expected, err := s.store.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Installation{}, "invalid_state", ErrInvalidState
		}
		return Installation{}, "store_error", err
	}
	if expected == "" || expected != shopDomain {
		s.log.Warn("oauth state issued for another shop", zap.String("shop", shopDomain), zap.String("expected", expected))
		return Installation{}, "state_mismatch", ErrStateMismatch
	}

	ok := shopify.VerifyOAuthCallback(query, s.apiSecret)
	s.metrics.SignatureChecked("oauth", ok)
	if !ok {
		s.log.Warn("oauth callback hmac validation failed", zap.String("shop", shopDomain))
		return Installation{}, "invalid_hmac", ErrInvalidHMAC
	}

	tok, err := s.exchange(ctx, shopDomain, code)
	if err != nil {
		s.log.Error("oauth code exchange failed", zap.String("shop", shopDomain), zap.Error(err))
		return Installation{}, "exchange_error", fmt.Errorf("%w: %v", ErrExchange, err)
	}

	if err := s.store.SaveShopToken(ctx, shopDomain, tok); err != nil {
		return Installation{}, "store_error", err
	}
	s.log.Info("shop installed", zap.String("shop", shopDomain), zap.String("scope", tok.Scope))

	if s.registrar != nil {
		if err := s.registrar.Register(ctx, shopDomain, tok); err != nil {
			s.log.Warn("webhook registration failed", zap.String("shop", shopDomain), zap.Error(err))
		}
	}
	return Installation{Shop: shopDomain, Token: tok}, "installed", nil
}

func (s *Service) exchange(ctx context.Context, shopDomain, code string) (shopify.AccessToken, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "shopify.oauth.exchange")
	defer span.End()

	if s.exchangeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.exchangeTimeout)
		defer cancel()
	}
	tok, err := s.exchanger.ExchangeCodeForToken(ctx, shopDomain, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange")
	}
	return tok, err
}

func randomHex16() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
