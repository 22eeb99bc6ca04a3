package adapters

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// ReadString returns a trimmed string setting.
func ReadString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok || value == nil {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		cast = strings.TrimSpace(cast)
		return cast, cast != ""
	case fmt.Stringer:
		s := strings.TrimSpace(cast.String())
		return s, s != ""
	default:
		return "", false
	}
}

// RequireString returns the setting or a ConfigurationError naming it.
func RequireString(gateway string, config map[string]any, key string) (string, error) {
	value, ok := ReadString(config, key)
	if !ok {
		return "", &domain.ConfigurationError{Gateway: gateway, Field: key}
	}
	return value, nil
}

// ReadStringMap reads a nested map of strings such as per-currency merchant accounts.
func ReadStringMap(config map[string]any, key string) map[string]string {
	out := map[string]string{}
	raw, ok := config[key]
	if !ok {
		return out
	}
	switch cast := raw.(type) {
	case map[string]any:
		for k, v := range cast {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(s)
			}
		}
	case map[string]string:
		for k, v := range cast {
			if strings.TrimSpace(v) != "" {
				out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
			}
		}
	}
	return out
}

// CurrencySet is the set of currencies an adapter accepts. Every member must
// have a known minor-unit exponent.
type CurrencySet map[string]struct{}

func NewCurrencySet(gateway string, configured []string, defaults []string) (CurrencySet, error) {
	source := configured
	if len(source) == 0 {
		source = defaults
	}
	set := CurrencySet{}
	for _, code := range source {
		code = money.NormalizeCurrency(code)
		if code == "" {
			continue
		}
		if !money.Known(code) {
			return nil, &domain.ConfigurationError{Gateway: gateway, Field: "currencies"}
		}
		set[code] = struct{}{}
	}
	if len(set) == 0 {
		return nil, &domain.ConfigurationError{Gateway: gateway, Field: "currencies"}
	}
	return set, nil
}

func (s CurrencySet) Supports(currency string) bool {
	_, ok := s[money.NormalizeCurrency(currency)]
	return ok
}
