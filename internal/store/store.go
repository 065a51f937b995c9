// Package store persists OAuth state nonces and shop access tokens.
//
// A Backend is the raw persistence capability; memory, postgres, mongo and redis
// implement it with the same observable semantics. Store layers the credential
// sealer and nonce expiry on top of whichever backend was chosen at startup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopifybridge/internal/credential"
	"shopifybridge/pkg/shopify"
)

var (
	// ErrNotFound: the nonce is unknown, consumed or expired, or no record exists for the shop.
	ErrNotFound = errors.New("store: not found")

	// ErrStateExists: a live nonce with the same value is already stored.
	ErrStateExists = errors.New("store: state already exists")

	// ErrCredentialUnavailable: a record exists but its credential could not be recovered.
	ErrCredentialUnavailable = errors.New("store: credential unavailable")
)

// State is a pending OAuth state nonce.
type State struct {
	Nonce      string
	ShopDomain string
	CreatedAt  time.Time
}

// ShopRecord is the persisted form of a shop's token. Credential is already sealed.
type ShopRecord struct {
	ID          string
	ShopDomain  string
	Credential  string
	Scope       string
	InstalledAt time.Time
	UpdatedAt   time.Time
}

// Backend is implemented by each storage engine.
type Backend interface {
	// SaveState inserts st unless a live nonce with the same value exists (ErrStateExists).
	// ttl is a hint for engines with native expiry; zero means none.
	SaveState(ctx context.Context, st State, ttl time.Duration) error

	// ConsumeState atomically removes and returns the nonce, or ErrNotFound.
	// Of any number of concurrent callers for one nonce exactly one succeeds.
	ConsumeState(ctx context.Context, nonce string) (State, error)

	// PutShop upserts rec keyed by ShopDomain; the last write wins.
	PutShop(ctx context.Context, rec ShopRecord) error

	// GetShop returns the record for shopDomain, or ErrNotFound.
	GetShop(ctx context.Context, shopDomain string) (ShopRecord, error)
}

// StatePurger is implemented by backends without native expiry.
type StatePurger interface {
	PurgeStates(ctx context.Context, createdBefore time.Time) (int64, error)
}

type Store struct {
	backend  Backend
	sealer   credential.Sealer
	stateTTL time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Store)

// WithStateTTL makes nonces older than ttl unconsumable. Zero disables expiry.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Store) { s.stateTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func New(backend Backend, sealer credential.Sealer, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		sealer:  sealer,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SaveState(ctx context.Context, nonce, shopDomain string) error {
	if nonce == "" {
		return fmt.Errorf("store: empty state nonce")
	}
	st := State{Nonce: nonce, ShopDomain: shopDomain, CreatedAt: s.now().UTC()}
	if err := s.backend.SaveState(ctx, st, s.stateTTL); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// ConsumeState returns the shop the nonce was issued for. The nonce is gone afterwards
// whether or not it had expired.
func (s *Store) ConsumeState(ctx context.Context, nonce string) (string, error) {
	if nonce == "" {
		return "", ErrNotFound
	}
	st, err := s.backend.ConsumeState(ctx, nonce)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("consume state: %w", err)
	}
	if s.stateTTL > 0 && s.now().Sub(st.CreatedAt) > s.stateTTL {
		s.log.Debug("oauth state expired", zap.String("shop", st.ShopDomain), zap.Time("created_at", st.CreatedAt))
		return "", ErrNotFound
	}
	return st.ShopDomain, nil
}

func (s *Store) SaveShopToken(ctx context.Context, shopDomain string, tok shopify.AccessToken) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(string(payload))
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	if err := s.backend.PutShop(ctx, ShopRecord{
		ShopDomain: shopDomain,
		Credential: sealed,
		Scope:      tok.Scope,
	}); err != nil {
		return fmt.Errorf("save shop token: %w", err)
	}
	return nil
}

// GetShopToken returns ErrNotFound when the shop has no record and
// ErrCredentialUnavailable when the record cannot be unsealed.
func (s *Store) GetShopToken(ctx context.Context, shopDomain string) (shopify.AccessToken, error) {
	rec, err := s.backend.GetShop(ctx, shopDomain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return shopify.AccessToken{}, ErrNotFound
		}
		return shopify.AccessToken{}, fmt.Errorf("get shop token: %w", err)
	}

	plain, ok := s.sealer.Open(rec.Credential)
	if !ok {
		s.log.Warn("stored credential could not be unsealed",
			zap.String("shop", shopDomain),
			zap.String("mode", string(s.sealer.Mode())),
		)
		return shopify.AccessToken{}, ErrCredentialUnavailable
	}

	var tok shopify.AccessToken
	if err := json.Unmarshal([]byte(plain), &tok); err != nil || tok.AccessToken == "" {
		// Rows written before tokens were stored as JSON hold the bare access token.
		tok = shopify.AccessToken{AccessToken: plain}
	}
	if tok.Scope == "" {
		tok.Scope = rec.Scope
	}
	if tok.AccessToken == "" {
		return shopify.AccessToken{}, ErrCredentialUnavailable
	}
	return tok, nil
}

// PurgeExpiredStates deletes nonces past the TTL on backends that keep them forever.
// It returns zero when expiry is disabled or the backend expires nonces itself.
func (s *Store) PurgeExpiredStates(ctx context.Context) (int64, error) {
	p, ok := s.backend.(StatePurger)
	if !ok || s.stateTTL <= 0 {
		return 0, nil
	}
	return p.PurgeStates(ctx, s.now().Add(-s.stateTTL))
}
