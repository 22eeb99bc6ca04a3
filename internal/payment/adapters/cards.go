package adapters

import "strings"

const CardTypePayPal = "PayPal"

var cardTypes = map[string]string{
	"visa":             "visa",
	"mastercard":       "mastercard",
	"master card":      "mastercard",
	"mc":               "mastercard",
	"american express": "american_express",
	"american_express": "american_express",
	"amex":             "american_express",
	"discover":         "discover",
	"jcb":              "jcb",
	"diners club":      "diners",
	"diners":           "diners",
	"unionpay":         "unionpay",
	"china unionpay":   "unionpay",
	"maestro":          "maestro",
	"rupay":            "rupay",
}

// NormalizeCardType maps gateway brand names onto one vocabulary. Unknown
// brands pass through lowercased.
func NormalizeCardType(brand string) string {
	key := strings.ToLower(strings.TrimSpace(brand))
	if key == "" {
		return ""
	}
	if normalized, ok := cardTypes[key]; ok {
		return normalized
	}
	return key
}
