// Package sanitize implements best-effort redaction of secrets before any
// string escapes the core into an audit entry or a receipt.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+\S+`)
	authHeaderPattern = regexp.MustCompile(`(?i)Authorization:\s*\S+`)
)

const redacted = "[REDACTED]"

// secretFieldNames are dropped from any map before it is serialized into an
// audit payload or receipt, regardless of their value.
var secretFieldNames = map[string]bool{
	"confirmation_token": true,
	"steward_key_token":  true,
}

// Sanitizer redacts a fixed device token plus generic bearer/authorization
// patterns from any string that might escape the core.
type Sanitizer struct {
	deviceToken string
}

// New builds a Sanitizer scoped to a single configured device API token.
// An empty token disables the token-specific replacement but the generic
// Bearer/Authorization patterns still apply.
func New(deviceToken string) *Sanitizer {
	return &Sanitizer{deviceToken: deviceToken}
}

// String redacts known secret substrings from v.
func (s *Sanitizer) String(v string) string {
	out := v
	if s.deviceToken != "" {
		out = strings.ReplaceAll(out, s.deviceToken, redacted)
	}
	out = bearerPattern.ReplaceAllString(out, "Bearer "+redacted)
	out = authHeaderPattern.ReplaceAllString(out, "Authorization: "+redacted)
	return out
}

// Map returns a shallow copy of m with secret-named fields removed and every
// remaining string value (including nested maps/slices) sanitized.
func (s *Sanitizer) Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if secretFieldNames[k] {
			continue
		}
		out[k] = s.Value(v)
	}
	return out
}

// Value recursively sanitizes strings nested inside maps and slices,
// leaving other scalar types untouched.
func (s *Sanitizer) Value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		return s.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.Value(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = s.String(e)
		}
		return out
	default:
		return v
	}
}

// IsSecretField reports whether a field name is always dropped pre-serialization.
func IsSecretField(name string) bool {
	return secretFieldNames[name]
}
