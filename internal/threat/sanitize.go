package threat

import "strings"

var htmlEscaper = strings.NewReplacer(
	"\x00", "",
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Sanitize strips NUL bytes and escapes HTML-significant characters.
func Sanitize(s string) string {
	return htmlEscaper.Replace(s)
}

// SanitizeValue applies Sanitize to every string in a decoded JSON value.
// Non-string scalars are returned as is.
func SanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = SanitizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = SanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
