package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhook_RoundTripAndMutation(t *testing.T) {
	const secret = "test-secret"
	payloads := [][]byte{
		[]byte(`{"hello":"world"}`),
		[]byte(`{ "hello" : "world" }`),
		{},
		{0x00, 0xff, 0x10},
	}

	for _, p := range payloads {
		sig := SignWebhook(p, secret)
		require.True(t, VerifyWebhook(p, sig, secret), "payload %q", p)

		if len(p) > 0 {
			mutated := append([]byte(nil), p...)
			mutated[0] ^= 0x01
			assert.False(t, VerifyWebhook(mutated, sig, secret), "mutated payload %q", mutated)
		}

		badSig := []byte(sig)
		badSig[0] ^= 0x01
		assert.False(t, VerifyWebhook(p, string(badSig), secret))
	}
}

func TestVerifyWebhook_ReserializedBodyFails(t *testing.T) {
	raw := []byte(`{ "b": 1, "a": 2 }`)
	sig := SignWebhook(raw, "s")
	assert.False(t, VerifyWebhook([]byte(`{"a":2,"b":1}`), sig, "s"))
}

func TestVerifyWebhook_MissingSignatureOrSecret(t *testing.T) {
	body := []byte("x")
	assert.False(t, VerifyWebhook(body, "", "s"))
	assert.False(t, VerifyWebhook(body, SignWebhook(body, ""), ""))
	assert.False(t, VerifyWebhook(body, SignWebhook(body, "s"), "other"))
}

func TestSignProxy_NoSeparator(t *testing.T) {
	q := url.Values{
		"shop":        {"demo.myshopify.com"},
		"path_prefix": {"/apps/aff"},
		"timestamp":   {"1700000000"},
	}
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("path_prefix=/apps/affshop=demo.myshopify.comtimestamp=1700000000"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), SignProxy(q, "s"))
}

func TestVerifyProxySignature(t *testing.T) {
	q := url.Values{
		"shop":      {"demo.myshopify.com"},
		"path":      {"/"},
		"timestamp": {"1700000000"},
	}
	q.Set("signature", SignProxy(q, "s"))
	assert.True(t, VerifyProxySignature(q, "s"))
	assert.False(t, VerifyProxySignature(q, "wrong"))

	q.Set("shop", "evil.myshopify.com")
	assert.False(t, VerifyProxySignature(q, "s"))
}

func TestVerifyProxySignature_HMACFallbackAndMissing(t *testing.T) {
	q := url.Values{"shop": {"demo.myshopify.com"}}
	assert.False(t, VerifyProxySignature(q, "s"))

	q.Set("hmac", SignProxy(q, "s"))
	assert.True(t, VerifyProxySignature(q, "s"))
}

func TestVerifyProxySignature_CaseSensitive(t *testing.T) {
	q := url.Values{"shop": {"demo.myshopify.com"}}
	sig := SignProxy(q, "s")
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 'a' + 'A'
		}
	}
	q.Set("signature", string(upper))
	assert.False(t, VerifyProxySignature(q, "s"))
}

func TestSignOAuthCallback_AmpersandSeparator(t *testing.T) {
	q := url.Values{
		"shop":      {"demo.myshopify.com"},
		"code":      {"abc"},
		"state":     {"n1"},
		"timestamp": {"1700000000"},
	}
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("code=abc&shop=demo.myshopify.com&state=n1&timestamp=1700000000"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), SignOAuthCallback(q, "s"))
}

func TestVerifyOAuthCallback(t *testing.T) {
	q := url.Values{
		"shop":  {"demo.myshopify.com"},
		"code":  {"abc"},
		"state": {"n1"},
	}
	assert.False(t, VerifyOAuthCallback(q, "s"), "missing hmac")

	q.Set("hmac", SignOAuthCallback(q, "s"))
	assert.True(t, VerifyOAuthCallback(q, "s"))
	assert.False(t, VerifyOAuthCallback(q, ""))

	q.Set("code", "abd")
	assert.False(t, VerifyOAuthCallback(q, "s"))
}

func TestSignatures_IndependentOfInsertionOrder(t *testing.T) {
	pairs := [][2]string{
		{"timestamp", "1700000000"},
		{"shop", "demo.myshopify.com"},
		{"code", "abc"},
		{"state", "n1"},
		{"host", "YWRtaW4="},
	}

	forward := url.Values{}
	for _, p := range pairs {
		forward.Add(p[0], p[1])
	}
	backward := url.Values{}
	for i := len(pairs) - 1; i >= 0; i-- {
		backward.Add(pairs[i][0], pairs[i][1])
	}

	assert.Equal(t, SignOAuthCallback(forward, "s"), SignOAuthCallback(backward, "s"))
	assert.Equal(t, SignProxy(forward, "s"), SignProxy(backward, "s"))

	forward.Set("hmac", SignOAuthCallback(forward, "s"))
	backward.Set("hmac", forward.Get("hmac"))
	assert.True(t, VerifyOAuthCallback(backward, "s"))
}
