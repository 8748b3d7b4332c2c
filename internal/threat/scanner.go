// Package threat detects injection signatures in request input.
package threat

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/org/servercatalog/pkg/models"
)

const maxValueLen = 50

type signature struct {
	source string
	re     *regexp.Regexp
}

func sig(source string) signature {
	return signature{source: source, re: regexp.MustCompile("(?i)" + source)}
}

// signatures is evaluated in order for every string leaf.
// SQL, NoSQL, command, XSS, LDAP and XML markers.
var signatures = []signature{
	sig(`\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE)\b`),
	sig(`UNION\s+SELECT`),
	sig(`'|\\x27|\\x2D\\x2D|\\'`),
	sig(`;|\|\||&&`),
	sig(`\$where|\$ne|\$gt|\$lt|\$gte|\$lte|\$in|\$nin|\$regex`),
	sig(";|&&|\\|\\||`|\\$\\("),
	sig(`\.\.`),
	sig(`/bin/|/usr/|/etc/|/var/`),
	sig(`<script|</script>|javascript:|on\w+\s*=`),
	sig(`<iframe|<object|<embed|<link|<meta`),
	sig(`expression\(|url\(|@import`),
	sig(`\*|\(\)|\|\||&&`),
	sig(`<!DOCTYPE|<!ENTITY|<\?xml`),
}

// scannedHeaders are the only headers inspected.
var scannedHeaders = []string{"User-Agent", "Referer", "X-Forwarded-For"}

// Surfaces is the part of a request that gets scanned.
type Surfaces struct {
	Query   url.Values
	Body    any
	Headers http.Header
}

// Match returns the signatures that s triggers.
func Match(s string) []string {
	var hits []string
	for _, sg := range signatures {
		if sg.re.MatchString(s) {
			hits = append(hits, sg.source)
		}
	}
	return hits
}

// Scan tests every string leaf of s against all signatures and returns every
// finding. It never stops at the first match.
func Scan(s Surfaces) []models.ThreatFinding {
	var findings []models.ThreatFinding

	keys := make([]string, 0, len(s.Query))
	for k := range s.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := s.Query[k]
		for i, v := range vals {
			path := "query." + k
			if len(vals) > 1 {
				path += "." + strconv.Itoa(i)
			}
			findings = appendFindings(findings, path, v)
		}
	}

	if s.Body != nil {
		findings = scanValue(findings, "body", s.Body)
	}

	for _, h := range scannedHeaders {
		if v := s.Headers.Get(h); v != "" {
			findings = appendFindings(findings, "headers."+strings.ToLower(h), v)
		}
	}
	return findings
}

func scanValue(findings []models.ThreatFinding, path string, v any) []models.ThreatFinding {
	switch t := v.(type) {
	case string:
		return appendFindings(findings, path, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			findings = scanValue(findings, path+"."+k, t[k])
		}
	case []any:
		for i, item := range t {
			findings = scanValue(findings, fmt.Sprintf("%s.%d", path, i), item)
		}
	}
	return findings
}

func appendFindings(findings []models.ThreatFinding, path, value string) []models.ThreatFinding {
	for _, p := range Match(value) {
		findings = append(findings, models.ThreatFinding{
			Pattern: p,
			Field:   path,
			Value:   truncate(value),
		})
	}
	return findings
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxValueLen {
		return s
	}
	return string(r[:maxValueLen]) + "..."
}
