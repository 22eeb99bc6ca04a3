// Package masking redacts payment tokens and payer identifiers before they
// reach audit records or logs.
package masking

import "strings"

const maskToken = "****"

// MaskSecret keeps a provider prefix such as "tok_" and the last four
// characters, masking everything in between.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, rest := trimmed, ""
	if idx := strings.LastIndex(trimmed, "_"); idx >= 0 && idx < len(trimmed)-1 {
		prefix, rest = trimmed[:idx+1], trimmed[idx+1:]
	} else {
		prefix, rest = "", trimmed
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskFields returns a copy of input with the named keys masked. Nested maps
// are masked with the same key set.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		if _, ok := sensitive[strings.ToLower(key)]; ok {
			if s, isString := value.(string); isString {
				out[key] = MaskSecret(s)
				continue
			}
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = MaskFields(nested, keys...)
			continue
		}
		out[key] = value
	}
	return out
}
