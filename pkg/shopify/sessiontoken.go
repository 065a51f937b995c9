package shopify

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenClaims are the claims of an embedded-app session token.
type SessionTokenClaims struct {
	jwt.RegisteredClaims

	// Dest is the shop origin, e.g. https://{shop}.
	Dest string `json:"dest,omitempty"`
}

type VerifiedSession struct {
	ShopDomain string
	ExpiresAt  time.Time
}

var (
	ErrMissingSessionToken = errors.New("missing session token")
	ErrMissingShopClaim    = errors.New("missing shop in session token")
)

// VerifySessionToken checks an HS256 session token signed with the app secret and
// returns the shop it was issued for.
func VerifySessionToken(tokenString, apiKey, apiSecret string, now time.Time) (*VerifiedSession, error) {
	if tokenString == "" {
		return nil, ErrMissingSessionToken
	}
	if apiSecret == "" {
		return nil, errors.New("missing api secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if apiKey != "" {
		opts = append(opts, jwt.WithAudience(apiKey))
	}

	claims := &SessionTokenClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}); err != nil {
		return nil, err
	}

	shopDomain := hostOf(claims.Dest)
	if shopDomain == "" {
		shopDomain = hostOf(claims.Issuer)
	}
	if shopDomain == "" {
		return nil, ErrMissingShopClaim
	}

	return &VerifiedSession{ShopDomain: shopDomain, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
