package api

import (
	"encoding/json"
	"mime"
	"net"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// decodeStrict is decodeJSON for fixed request structs: unknown fields are errors.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// mediaType is the lower-cased Content-Type without parameters.
func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// requireJSON answers 415 unless the request declares a JSON body. Handlers
// that decode JSON call it first so a body is never read under a type the
// threat scan interpreted differently.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	if mediaType(r) == "application/json" {
		return true
	}
	writeError(w, http.StatusUnsupportedMediaType, KindUnsupportedMediaType, "This endpoint only accepts application/json")
	return false
}

// clientIP is the rate-limit and anomaly identity of a request. With
// trust_proxy enabled, chi's RealIP has already rewritten RemoteAddr from the
// forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// hasPrefixFold is strings.HasPrefix ignoring ASCII case.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
