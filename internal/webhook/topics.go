package webhook

import "strings"

// NormalizeTopic maps an X-Shopify-Topic value to the form used in logs and metric labels:
// "orders/paid" -> "orders_paid", "APP/uninstalled" -> "app_uninstalled". Empty becomes "unknown".
func NormalizeTopic(topic string) string {
	t := strings.TrimSpace(strings.ToLower(topic))
	t = strings.NewReplacer("/", "_", ".", "_", "-", "_").Replace(t)
	for strings.Contains(t, "__") {
		t = strings.ReplaceAll(t, "__", "_")
	}
	t = strings.Trim(t, "_")
	if t == "" {
		return "unknown"
	}
	return t
}
