// Package webhook validates and stores outbound notification targets.
package webhook

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

var ErrURLRejected = errors.New("webhook url rejected")

// Validator accepts only URLs whose scheme and host are allow-listed and
// whose host is not a loopback, link-local or unspecified address.
type Validator struct {
	hosts   map[string]struct{}
	schemes map[string]struct{}
}

func NewValidator(allowedHosts, allowedSchemes []string) *Validator {
	v := &Validator{
		hosts:   make(map[string]struct{}, len(allowedHosts)),
		schemes: make(map[string]struct{}, len(allowedSchemes)),
	}
	for _, h := range allowedHosts {
		v.hosts[strings.ToLower(h)] = struct{}{}
	}
	for _, s := range allowedSchemes {
		v.schemes[strings.ToLower(strings.TrimSuffix(s, ":"))] = struct{}{}
	}
	return v
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrURLRejected, fmt.Sprintf(format, args...))
}

// Check parses raw and applies every rule. The returned URL is safe to call.
func (v *Validator) Check(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, rejected("malformed url")
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, rejected("url must be absolute")
	}
	if u.User != nil {
		return nil, rejected("credentials in url are not allowed")
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := v.schemes[scheme]; !ok {
		return nil, rejected("scheme %q not allowed", scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, rejected("loopback host")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		switch {
		case addr.IsLoopback():
			return nil, rejected("loopback address")
		case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
			return nil, rejected("link-local address")
		case addr.IsUnspecified():
			return nil, rejected("unspecified address")
		}
	}
	if _, ok := v.hosts[host]; !ok {
		return nil, rejected("host %q not in allow-list", host)
	}
	return u, nil
}
