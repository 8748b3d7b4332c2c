package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/org/servercatalog/internal/audit"
	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/config"
	"github.com/org/servercatalog/internal/threat"
	"github.com/org/servercatalog/pkg/models"
)

const testSecret = "test-master-secret-0123456789"

// --- helpers ---

type serverOption func(*config.Config)

func newTestServer(t *testing.T, opts ...serverOption) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.LogDir = t.TempDir()
	for _, o := range opts {
		o(&cfg)
	}
	return newTestServerWithRepo(t, cfg, catalog.NewMemoryStore(cfg.PublicBaseURL))
}

func newTestServerWithRepo(t *testing.T, cfg config.Config, repo catalog.Repository) (*Server, http.Handler) {
	t.Helper()
	logger, err := audit.NewLogger(cfg.LogDir)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() }) //nolint:errcheck

	srv, err := NewServer(cfg, repo, logger)
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return srv, srv.BuildRouter()
}

func tokenFor(t *testing.T, srv *Server, user, role string) string {
	t.Helper()
	tok, err := srv.issuer.Issue(user, role)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, handler, http.MethodPost, path, body, token)
}

// postRaw sends body verbatim under the given Content-Type.
func postRaw(t *testing.T, handler http.Handler, path, contentType string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func getJSON(t *testing.T, handler http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, handler, http.MethodGet, path, nil, token)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, code int, kind string) map[string]any {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["error"] != kind {
		t.Errorf("expected error %q, got %v", kind, body["error"])
	}
	return body
}

func readLog(t *testing.T, srv *Server, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(srv.logger.Dir(), name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

func validProduct() map[string]any {
	return map[string]any{
		"titulo":      "Servidor Alpha",
		"descripcion": "Servidor de alto rendimiento",
		"precio":      1500.5,
		"nucleos":     8,
		"ram":         32,
		"disco":       500,
		"cluster":     "c1",
		"estado":      "activo",
	}
}

// panicRepo fails every listing with a panic to exercise the terminal handler.
type panicRepo struct {
	*catalog.MemoryStore
}

func (panicRepo) List(context.Context) ([]models.Product, error) {
	panic("catalog exploded")
}

func (panicRepo) Create(context.Context, models.ProductDraft) (*models.Product, error) {
	panic("catalog exploded on create")
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	w := getJSON(t, handler, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("expected health limiter headers, got limit %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}
	body := decodeBody(t, w)
	if body["status"] != "OK" {
		t.Errorf("expected status OK, got %v", body["status"])
	}
	if _, ok := body["uptime"].(float64); !ok {
		t.Error("expected numeric uptime")
	}
}

func TestHealthRateLimited(t *testing.T) {
	_, handler := newTestServer(t)

	for i := 1; i <= 20; i++ {
		w := getJSON(t, handler, "/health", "")
		if i <= 10 {
			if w.Code != http.StatusOK {
				t.Fatalf("call %d: expected 200, got %d", i, w.Code)
			}
			continue
		}
		body := expectError(t, w, http.StatusTooManyRequests, KindRateLimitExceeded)
		retry, _ := body["retryAfter"].(float64)
		if retry <= 0 || retry > 60 {
			t.Errorf("call %d: retryAfter = %v, want (0, 60]", i, body["retryAfter"])
		}
		if w.Header().Get("Retry-After") == "" {
			t.Errorf("call %d: expected Retry-After header", i)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
			t.Errorf("call %d: remaining = %q", i, got)
		}
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	srv, handler := newTestServer(t)

	w := postJSON(t, handler, "/login", map[string]any{"username": "ana", "role": "admin"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	if body["expiresIn"] != float64(3600) {
		t.Errorf("expiresIn = %v", body["expiresIn"])
	}

	w = getJSON(t, handler, "/products", token)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", w.Code, w.Body.String())
	}
	var list []models.Product
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 seeded products, got %d", len(list))
	}

	if !strings.Contains(readLog(t, srv, audit.SecurityFile), models.EventAuthSuccess) {
		t.Error("expected AUTH_SUCCESS in security log")
	}
}

func TestCredentialLifetimeIgnoresConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("jwt_secret: "+testSecret+"\ncredential_ttl: 1m\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.LogDir = t.TempDir()
	_, handler := newTestServerWithRepo(t, cfg, catalog.NewMemoryStore(cfg.PublicBaseURL))

	w := postJSON(t, handler, "/login", map[string]any{"username": "ana"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["expiresIn"]; got != float64(3600) {
		t.Errorf("expiresIn = %v, want 3600", got)
	}
}

func TestLoginDefaultsUnknownRole(t *testing.T) {
	_, handler := newTestServer(t)

	w := postJSON(t, handler, "/login", map[string]any{"role": "root"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d", w.Code)
	}
	user, _ := decodeBody(t, w)["user"].(map[string]any)
	if user["role"] != models.RoleUser || user["id"] != defaultLoginUser {
		t.Errorf("unexpected user %v", user)
	}
}

func TestAuthErrors(t *testing.T) {
	srv, handler := newTestServer(t)

	expectError(t, getJSON(t, handler, "/products", ""), http.StatusUnauthorized, KindMissingCredential)
	expectError(t, getJSON(t, handler, "/products", "not-a-token"), http.StatusForbidden, KindInvalidCredential)

	other, _ := newTestServer(t, func(c *config.Config) { c.JWTSecret = "another-secret-entirely" })
	foreign := tokenFor(t, other, "eve", models.RoleAdmin)
	expectError(t, getJSON(t, handler, "/products", foreign), http.StatusForbidden, KindInvalidCredential)

	ro := tokenFor(t, srv, "reader", models.RoleReadOnly)
	if w := getJSON(t, handler, "/products/1", ro); w.Code != http.StatusOK {
		t.Errorf("readonly get: expected 200, got %d", w.Code)
	}
	expectError(t, doJSON(t, handler, http.MethodDelete, "/products/1", nil, ro), http.StatusForbidden, KindForbidden)
	expectError(t, postJSON(t, handler, "/products", validProduct(), ro), http.StatusForbidden, KindForbidden)

	if !strings.Contains(readLog(t, srv, audit.SecurityFile), models.EventUnauthorizedAccess) {
		t.Error("expected UNAUTHORIZED_ACCESS in security log")
	}
}

func TestCreateValidationError(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	w := postJSON(t, handler, "/products", map[string]any{"titulo": "Test", "descripcion": "Too short"}, admin)
	body := expectError(t, w, http.StatusBadRequest, KindValidation)
	details, _ := body["details"].([]any)
	found := false
	for _, d := range details {
		if d == "descripcion must be at least 10 characters" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected descripcion length error, got %v", details)
	}
}

func TestCreateProductAssignsNextID(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	w := postJSON(t, handler, "/productos", validProduct(), admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["id"] != float64(3) {
		t.Errorf("expected id 3, got %v", body["id"])
	}
	self, _ := body["self"].(map[string]any)
	if self["link"] != "https://ejemplo.com/productos/3" {
		t.Errorf("unexpected self link %v", self["link"])
	}

	if w := getJSON(t, handler, "/productos/3", admin); w.Code != http.StatusOK {
		t.Errorf("get created: expected 200, got %d", w.Code)
	}
	if !strings.Contains(readLog(t, srv, audit.AuditFile), "POST /productos") {
		t.Error("expected audit record for the create")
	}
}

func TestDeleteMissingProduct(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	expectError(t, doJSON(t, handler, http.MethodDelete, "/productos/999", nil, admin), http.StatusNotFound, KindNotFound)

	w := doJSON(t, handler, http.MethodDelete, "/productos/2", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	expectError(t, getJSON(t, handler, "/productos/2", admin), http.StatusNotFound, KindNotFound)
}

func TestUpdateProduct(t *testing.T) {
	srv, handler := newTestServer(t)
	user := tokenFor(t, srv, "maria", models.RoleUser)

	w := doJSON(t, handler, http.MethodPatch, "/products/1", map[string]any{"precio": 99}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("patch failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["precio"] != float64(99) || body["id"] != float64(1) {
		t.Errorf("unexpected product %v", body)
	}

	w = doJSON(t, handler, http.MethodPut, "/products/1", map[string]any{}, user)
	body = expectError(t, w, http.StatusBadRequest, KindValidation)
	if details, _ := body["details"].([]any); len(details) != 1 || details[0] != "at least one field must be provided" {
		t.Errorf("unexpected details %v", body["details"])
	}

	w = doJSON(t, handler, http.MethodPut, "/products/1", map[string]any{"estado": "roto"}, user)
	expectError(t, w, http.StatusBadRequest, KindValidation)

	expectError(t, getJSON(t, handler, "/products/abc", user), http.StatusBadRequest, KindValidation)
}

func TestListFilters(t *testing.T) {
	srv, handler := newTestServer(t)
	ro := tokenFor(t, srv, "reader", models.RoleReadOnly)

	w := getJSON(t, handler, "/products?estado=activo", ro)
	if w.Code != http.StatusOK {
		t.Fatalf("filter failed: %d %s", w.Code, w.Body.String())
	}
	expectError(t, getJSON(t, handler, "/products?estado=roto", ro), http.StatusBadRequest, KindValidation)
}

func TestThreatDetected(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	p := validProduct()
	p["titulo"] = "x' OR 1=1 --"
	w := postJSON(t, handler, "/products", p, admin)
	body := expectError(t, w, http.StatusBadRequest, KindThreatDetected)
	if strings.Contains(body["message"].(string), "SELECT") || strings.Contains(body["message"].(string), "'") {
		t.Errorf("response must not reveal the pattern: %v", body["message"])
	}

	expectError(t, getJSON(t, handler, "/products?q=<script>alert(1)</script>", admin), http.StatusBadRequest, KindThreatDetected)

	log := readLog(t, srv, audit.SecurityFile)
	if !strings.Contains(log, models.EventInjectionAttempt) || !strings.Contains(log, "body.titulo") {
		t.Errorf("expected injection findings in security log, got %s", log)
	}
}

func TestContentChecks(t *testing.T) {
	srv, handler := newTestServer(t, func(c *config.Config) { c.MaxBodyBytes = 256 })
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, KindContentTypeRequired)

	req = httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`hello`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+admin)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	expectError(t, w, http.StatusUnsupportedMediaType, KindUnsupportedMediaType)

	p := validProduct()
	p["descripcion"] = strings.Repeat("a", 400)
	expectError(t, postJSON(t, handler, "/products", p, admin), http.StatusRequestEntityTooLarge, KindPayloadTooLarge)
}

func TestThreatScanIgnoresDeclaredType(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	p := validProduct()
	p["descripcion"] = "<script>alert(1)</script> ' OR 1=1 --"
	payload, _ := json.Marshal(p)

	for _, ct := range []string{"application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
		w := postRaw(t, handler, "/productos", ct, payload, admin)
		expectError(t, w, http.StatusBadRequest, KindThreatDetected)
	}

	form := "titulo=Nodo&descripcion=%3Cscript%3Ealert%281%29%3C%2Fscript%3E"
	w := postRaw(t, handler, "/productos", "application/x-www-form-urlencoded", []byte(form), admin)
	expectError(t, w, http.StatusBadRequest, KindThreatDetected)

	body, ct := multipartBody(t, map[string]string{"titulo": "Nodo", "descripcion": "<script>alert(1)</script>"})
	w = postRaw(t, handler, "/productos", ct, body, admin)
	expectError(t, w, http.StatusBadRequest, KindThreatDetected)

	if n, _ := srv.repo.Count(context.Background()); n != 2 {
		t.Errorf("no product should have been stored, catalog has %d", n)
	}
}

func TestJSONEndpointsRejectOtherTypes(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	clean, _ := json.Marshal(validProduct())
	gql, _ := json.Marshal(map[string]any{"query": "{ products { id } }"})
	hook, _ := json.Marshal(map[string]any{"url": "https://api.ejemplo.com/hook"})
	form, formType := multipartBody(t, map[string]string{"titulo": "Nodo"})

	cases := []struct {
		path string
		body []byte
	}{
		{"/products", clean},
		{"/productos", clean},
		{"/graphql", gql},
		{"/webhook", hook},
		{"/login", []byte(`{"username":"maria"}`)},
	}
	for _, tc := range cases {
		for _, ct := range []string{"application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
			w := postRaw(t, handler, tc.path, ct, tc.body, admin)
			expectError(t, w, http.StatusUnsupportedMediaType, KindUnsupportedMediaType)
		}
	}
	w := postRaw(t, handler, "/products", formType, form, admin)
	expectError(t, w, http.StatusUnsupportedMediaType, KindUnsupportedMediaType)

	w = postRaw(t, handler, "/products", "application/json; charset=utf-8", clean, admin)
	if w.Code != http.StatusCreated {
		t.Errorf("json with charset: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("preflight: expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials = %q", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body should be empty, got %q", w.Body.String())
	}

	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("max-age = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin must not be echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3001")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cross-origin GET: expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3001" {
		t.Errorf("allow-origin on simple request = %q", got)
	}
	if !strings.Contains(strings.Join(w.Header().Values("Vary"), ","), "Origin") {
		t.Errorf("expected Vary: Origin, got %v", w.Header().Values("Vary"))
	}
}

func TestSignedEnvelope(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	env, err := srv.signer.Sign(validProduct())
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	w := postJSON(t, handler, "/products", env, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("signed create failed: %d %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["titulo"] != "Servidor Alpha" {
		t.Error("expected the envelope data to be stored")
	}

	env.Signature = strings.Repeat("0", 64)
	expectError(t, postJSON(t, handler, "/products", env, admin), http.StatusBadRequest, KindIntegrityFailure)
}

func TestFileIntegrityBreach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critical.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	srv, handler := newTestServer(t, func(c *config.Config) { c.CriticalFiles = []string{path} })

	if w := getJSON(t, handler, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 before tampering, got %d", w.Code)
	}
	if err := os.WriteFile(path, []byte("a: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	expectError(t, getJSON(t, handler, "/health", ""), http.StatusInternalServerError, KindIntegrityFailure)
	if !strings.Contains(readLog(t, srv, audit.SecurityFile), `"severity":"CRITICAL"`) {
		t.Error("expected a CRITICAL event")
	}
}

func TestWebhookRegistration(t *testing.T) {
	srv, handler := newTestServer(t)
	user := tokenFor(t, srv, "maria", models.RoleUser)

	w := postJSON(t, handler, "/webhook", map[string]any{
		"url":    "https://hooks.ejemplo.com/catalog",
		"secret": "hook-signing-value",
	}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hook-signing-value") {
		t.Error("response must not contain the secret")
	}
	body := decodeBody(t, w)
	if body["owner"] != "maria" || body["signed"] != true {
		t.Errorf("unexpected registration %v", body)
	}

	w = postJSON(t, handler, "/webhook", map[string]any{"url": "https://169.254.169.254/latest"}, user)
	expectError(t, w, http.StatusBadRequest, KindURLRejected)

	w = postJSON(t, handler, "/webhook", map[string]any{"url": "https://hooks.ejemplo.com/x"}, tokenFor(t, srv, "r", models.RoleReadOnly))
	expectError(t, w, http.StatusForbidden, KindForbidden)
}

func TestGraphQL(t *testing.T) {
	srv, handler := newTestServer(t)
	user := tokenFor(t, srv, "maria", models.RoleUser)

	w := postJSON(t, handler, "/graphql", map[string]any{"query": "{ products { id titulo } }"}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("query failed: %d %s", w.Code, w.Body.String())
	}
	data, _ := decodeBody(t, w)["data"].(map[string]any)
	if list, _ := data["products"].([]any); len(list) != 2 {
		t.Errorf("expected 2 products, got %v", data["products"])
	}

	mutation := `mutation { createProducto(titulo: "Nodo Beta", descripcion: "Nodo de computo dedicado", ` +
		`precio: 250, nucleos: 4, ram: 16, disco: 200) { id titulo } }`
	w = postJSON(t, handler, "/graphql", map[string]any{"query": mutation}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("mutation failed: %d %s", w.Code, w.Body.String())
	}
	data, _ = decodeBody(t, w)["data"].(map[string]any)
	created, _ := data["createProducto"].(map[string]any)
	if created["id"] != float64(3) {
		t.Errorf("expected id 3, got %v", data)
	}

	w = postJSON(t, handler, "/graphql", map[string]any{"query": "{ __schema { types { name } } }"}, user)
	expectError(t, w, http.StatusBadRequest, KindThreatDetected)

	deep := "{ a " + strings.Repeat("{ b ", 10) + strings.Repeat("} ", 11)
	w = postJSON(t, handler, "/graphql", map[string]any{"query": deep}, user)
	expectError(t, w, http.StatusBadRequest, KindThreatDetected)

	w = postJSON(t, handler, "/graphql", map[string]any{"query": "{ products { id }"}, user)
	if w.Code != http.StatusBadRequest {
		t.Errorf("syntax error: expected 400, got %d", w.Code)
	}
}

func TestSecurityStatus(t *testing.T) {
	srv, handler := newTestServer(t)

	expectError(t, getJSON(t, handler, "/security-status", ""), http.StatusUnauthorized, KindMissingCredential)

	w := getJSON(t, handler, "/security-status", tokenFor(t, srv, "reader", models.RoleReadOnly))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if s := body["overallStatus"]; s != "SECURE" && s != "WARNING" {
		t.Errorf("unexpected overallStatus %v", s)
	}
	if _, ok := body["dependencies"].(map[string]any); !ok {
		t.Error("expected dependency report")
	}
}

func TestAnomaliesAdminOnly(t *testing.T) {
	srv, handler := newTestServer(t)
	admin := tokenFor(t, srv, "root", models.RoleAdmin)

	expectError(t, getJSON(t, handler, "/audit/anomalies", tokenFor(t, srv, "maria", models.RoleUser)),
		http.StatusForbidden, KindForbidden)

	getJSON(t, handler, "/products", admin)
	w := getJSON(t, handler, "/audit/anomalies?user=root", admin)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entries, _ := decodeBody(t, w)["data"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one tracked principal, got %v", entries)
	}
	if e, _ := entries[0].(map[string]any); e["userId"] != "root" {
		t.Errorf("unexpected entry %v", e)
	}
}

func TestHighFrequencyActionsLogged(t *testing.T) {
	srv, handler := newTestServer(t)
	ro := tokenFor(t, srv, "busy", models.RoleReadOnly)

	for i := 0; i < 51; i++ {
		if w := getJSON(t, handler, "/products/1", ro); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	log := readLog(t, srv, audit.SecurityFile)
	if strings.Count(log, "HIGH_FREQUENCY_ACTIONS") != 1 {
		t.Errorf("expected exactly one high-frequency event, got log %s", log)
	}
}

func TestPanicRecovery(t *testing.T) {
	for _, env := range []string{config.EnvDevelopment, config.EnvProduction} {
		t.Run(env, func(t *testing.T) {
			cfg := config.Default()
			cfg.JWTSecret = testSecret
			cfg.LogDir = t.TempDir()
			cfg.Environment = env
			srv, handler := newTestServerWithRepo(t, cfg, panicRepo{catalog.NewMemoryStore(cfg.PublicBaseURL)})

			w := getJSON(t, handler, "/products", tokenFor(t, srv, "root", models.RoleAdmin))
			body := expectError(t, w, http.StatusInternalServerError, KindInternal)
			_, hasStack := body["stack"]
			if env == config.EnvProduction && (hasStack || strings.Contains(body["message"].(string), "exploded")) {
				t.Errorf("production response leaks details: %v", body)
			}
			if env == config.EnvDevelopment && !hasStack {
				t.Errorf("development response should carry the stack: %v", body)
			}
			if !strings.Contains(readLog(t, srv, audit.ErrorFile), "catalog exploded") {
				t.Error("expected the panic in the error log")
			}

			p := validProduct()
			p["descripcion"] = "Discos <b>rapidos</b> en RAID"
			w = postJSON(t, handler, "/products", p, tokenFor(t, srv, "root", models.RoleAdmin))
			expectError(t, w, http.StatusInternalServerError, KindInternal)
			log := readLog(t, srv, audit.ErrorFile)
			if !strings.Contains(log, "&lt;b&gt;rapidos") || strings.Contains(log, "<b>rapidos") {
				t.Errorf("expected the request body to be logged escaped, got %s", log)
			}
		})
	}
}

func TestNotFoundEchoesSanitizedPath(t *testing.T) {
	_, handler := newTestServer(t)

	body := expectError(t, getJSON(t, handler, "/does-not-exist", ""), http.StatusNotFound, KindNotFound)
	if body["path"] != threat.Sanitize("/does-not-exist") {
		t.Errorf("unexpected path %v", body["path"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	getJSON(t, handler, "/health", "")

	w := getJSON(t, handler, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "servercatalog_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}
