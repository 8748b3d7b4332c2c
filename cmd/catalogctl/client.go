package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks JSON to the catalog API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func newClient() (*Client, error) {
	s := cfg.env()

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.CACert != "" {
		pem, err := os.ReadFile(s.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", s.CACert)
		}
		tlsCfg.RootCAs = pool
	}

	return &Client{
		base:  strings.TrimRight(s.Address, "/"),
		token: s.Token,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
	}, nil
}

// call sends one request and decodes the JSON answer. Non-2xx answers come
// back as *apiError.
func (c *Client) call(method, path string, body any) (any, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return parseResponse(resp)
}

func (c *Client) get(path string) (any, error) { return c.call(http.MethodGet, path, nil) }

func (c *Client) post(path string, body any) (any, error) {
	return c.call(http.MethodPost, path, body)
}

func (c *Client) patch(path string, body any) (any, error) {
	return c.call(http.MethodPatch, path, body)
}

func (c *Client) delete(path string) (any, error) { return c.call(http.MethodDelete, path, nil) }

// apiError mirrors the server's {error, message, details} failure body.
type apiError struct {
	Status  int
	Kind    string
	Message string
	Details []string
}

func (e *apiError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	for _, d := range e.Details {
		b.WriteString("\n  - ")
		b.WriteString(d)
	}
	return b.String()
}

func parseResponse(resp *http.Response) (any, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		}
	}
	if resp.StatusCode < 400 {
		return out, nil
	}

	e := &apiError{Status: resp.StatusCode, Kind: http.StatusText(resp.StatusCode)}
	m, _ := out.(map[string]any)
	if k, ok := m["error"].(string); ok {
		e.Kind = k
	}
	e.Message, _ = m["message"].(string)
	if ds, ok := m["details"].([]any); ok {
		for _, d := range ds {
			e.Details = append(e.Details, fmt.Sprint(d))
		}
	}
	return nil, e
}
