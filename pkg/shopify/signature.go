package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Shopify signs its three inbound request shapes differently:
//   - webhooks: base64(HMAC_SHA256(raw body))
//   - App Proxy: hex HMAC over sorted "k=v" pairs concatenated with no separator
//   - OAuth callback: hex HMAC over sorted "k=v" pairs joined with "&"
// The separators and excluded fields must stay exactly as they are.

// VerifyWebhook verifies the X-Shopify-Hmac-Sha256 header against the raw request body.
// body must be the literal bytes received; a re-serialized body will not verify.
func VerifyWebhook(body []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(SignWebhook(body, secret)), []byte(signature))
}

// SignWebhook returns the signature Shopify sends for body.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyProxySignature verifies an App Proxy request. The signature is read from
// "signature", falling back to "hmac"; both are excluded from the signed message.
func VerifyProxySignature(query url.Values, secret string) bool {
	given := query.Get("signature")
	if given == "" {
		given = query.Get("hmac")
	}
	if given == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(SignProxy(query, secret)), []byte(given))
}

// SignProxy computes the App Proxy signature for query, ignoring any signature/hmac present.
func SignProxy(query url.Values, secret string) string {
	var b strings.Builder
	for _, k := range sortedKeys(query, "signature", "hmac") {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[k], ","))
	}
	return hexHMAC(b.String(), secret)
}

// VerifyOAuthCallback verifies the hmac parameter Shopify adds to the OAuth redirect.
func VerifyOAuthCallback(query url.Values, secret string) bool {
	given := query.Get("hmac")
	if given == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(SignOAuthCallback(query, secret)), []byte(given))
}

// SignOAuthCallback computes the callback hmac for query, ignoring any hmac present.
func SignOAuthCallback(query url.Values, secret string) string {
	var parts []string
	for _, k := range sortedKeys(query, "hmac") {
		for _, v := range query[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return hexHMAC(strings.Join(parts, "&"), secret)
}

func sortedKeys(values url.Values, exclude ...string) []string {
	keys := make([]string, 0, len(values))
outer:
	for k := range values {
		for _, e := range exclude {
			if k == e {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hexHMAC(msg, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
