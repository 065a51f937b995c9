package shopify

import (
	"regexp"
	"strings"
)

var shopDomainRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-]*\.myshopify\.com$`)

// NormalizeShopDomain trims and lower-cases a shop parameter and reports whether it is a
// *.myshopify.com host. Anything else must never be used to build a redirect or token URL.
func NormalizeShopDomain(shop string) (string, bool) {
	shop = strings.ToLower(strings.TrimSpace(shop))
	return shop, shopDomainRe.MatchString(shop)
}
