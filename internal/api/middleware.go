package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/org/servercatalog/internal/anomaly"
	"github.com/org/servercatalog/internal/audit"
	"github.com/org/servercatalog/internal/integrity"
	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/internal/ratelimit"
	"github.com/org/servercatalog/internal/threat"
	"github.com/org/servercatalog/pkg/models"
)

const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self'; " +
	"connect-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

var (
	corsAllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsAllowHeaders = []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"}
)

const corsMaxAge = 86400

var acceptedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// requestIDMiddleware attaches a UUID request ID and the per-request state.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := withState(withRequestID(r.Context(), id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// requestFields is the common context attached to security events.
func requestFields(r *http.Request) map[string]any {
	return map[string]any{
		"requestId": requestIDFromCtx(r.Context()),
		"method":    r.Method,
		"url":       r.URL.RequestURI(),
		"ip":        clientIP(r),
		"userAgent": r.UserAgent(),
	}
}

// recoverer is the terminal handler for panics raised below it.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			s.internalError(w, r, err, debug.Stack())
		}()
		next.ServeHTTP(w, r)
	})
}

// internalError logs err with the full request context and answers 500.
// Outside production the message and stack are returned to the caller.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, stack []byte) {
	fields := requestFields(r)
	if p := principalFromCtx(r.Context()); p != nil {
		fields["user"] = map[string]any{"id": p.ID, "role": p.Role}
	}
	if body := rawBodyFromCtx(r.Context()); len(body) > 0 {
		var v map[string]any
		if json.Unmarshal(body, &v) == nil {
			fields["body"] = threat.SanitizeValue(v)
		}
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields["query"] = q
	}
	s.logger.LogError(err, fields)

	if s.cfg.Production() {
		writeError(w, http.StatusInternalServerError, KindInternal, "An unexpected error occurred")
		return
	}
	body := map[string]any{"error": KindInternal, "message": err.Error()}
	if stack != nil {
		body["stack"] = string(stack)
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// securityHeaders hardens every response.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		next.ServeHTTP(w, r)
	})
}

// cors echoes allow-listed origins with credentials. Preflights are answered
// with 200 and an empty body; unlisted origins get no allow-origin header.
func (s *Server) cors() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   corsAllowMethods,
		AllowedHeaders:   corsAllowHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}

// authMonitor logs login outcomes and every 401/403 after the response is produced.
func (s *Server) authMonitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		fields := requestFields(r)
		fields["statusCode"] = rr.statusCode
		if p := principalFromCtx(r.Context()); p != nil {
			fields["userId"] = p.ID
		}

		if strings.Contains(r.URL.Path, "/login") {
			if rr.statusCode == http.StatusOK {
				s.logger.LogEvent(models.EventAuthSuccess, models.SeverityLow, fields)
			} else {
				s.logger.LogEvent(models.EventAuthFailure, models.SeverityMedium, fields)
			}
		}
		if rr.statusCode == http.StatusUnauthorized || rr.statusCode == http.StatusForbidden {
			s.logger.LogEvent(models.EventUnauthorizedAccess, models.SeverityHigh, fields)
		}
	})
}

type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// rateLimit admits requests through l, keyed by client address.
func (s *Server) rateLimit(l *ratelimit.FixedWindow) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			d, err := l.Allow(ip)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", d.Reset.UTC().Format(http.TimeFormat))

			if err != nil {
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				rateLimitedTotal.WithLabelValues(l.Name()).Inc()
				fields := requestFields(r)
				fields["limiter"] = l.Name()
				fields["retryAfter"] = retry
				s.logger.LogEvent(models.EventRateLimitExceeded, models.SeverityMedium, fields)

				h.Set("Retry-After", strconv.Itoa(retry))
				writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
					Error:      KindRateLimitExceeded,
					Message:    "Too many requests, please try again later",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// suspiciousAgent flags scanner and scripted user agents. It never rejects.
func (s *Server) suspiciousAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if threat.SuspiciousAgent(r.UserAgent()) {
			fields := requestFields(r)
			fields["reason"] = "suspicious user agent"
			fields["agent"] = threat.DescribeAgent(r.UserAgent())
			s.logger.LogEvent(models.EventSuspiciousActivity, models.SeverityMedium, fields)
		}
		next.ServeHTTP(w, r)
	})
}

func hasBodyMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// contentChecks enforces the accepted content types and the body size cap,
// then buffers the body so later stages can read it more than once.
func (s *Server) contentChecks(next http.Handler) http.Handler {
	limit := s.cfg.MaxBodyBytes
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBodyMethod(r.Method) {
			ct := r.Header.Get("Content-Type")
			if ct == "" {
				writeError(w, http.StatusBadRequest, KindContentTypeRequired, "Content-Type header is required")
				return
			}
			accepted := false
			for _, t := range acceptedContentTypes {
				if hasPrefixFold(ct, t) {
					accepted = true
					break
				}
			}
			if !accepted {
				writeError(w, http.StatusUnsupportedMediaType, KindUnsupportedMediaType, "Unsupported content type")
				return
			}
		}

		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, KindPayloadTooLarge, "Request body too large")
			return
		}
		if r.Body != nil && r.Body != http.NoBody {
			data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
			r.Body.Close() //nolint:errcheck
			if err != nil {
				writeError(w, http.StatusBadRequest, KindValidation, "Could not read request body")
				return
			}
			if int64(len(data)) > limit {
				writeError(w, http.StatusRequestEntityTooLarge, KindPayloadTooLarge, "Request body too large")
				return
			}
			stateFromCtx(r.Context()).body = data
			r.Body = io.NopCloser(bytes.NewReader(data))
		}
		next.ServeHTTP(w, r)
	})
}

// surfaceOf returns the first segment of a finding path: query, body or headers.
func surfaceOf(field string) string {
	surface, _, _ := strings.Cut(field, ".")
	return surface
}

// scannedBody is the view of the buffered body the threat scan inspects.
// Anything that parses as JSON is scanned as JSON whatever its declared type,
// so relabelling a payload cannot hide it from the signatures.
func scannedBody(r *http.Request, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var body any
	if err := json.Unmarshal(raw, &body); err == nil {
		return body
	}

	mt, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/x-www-form-urlencoded":
		if vals, err := url.ParseQuery(string(raw)); err == nil {
			return formValues(vals)
		}
	case "multipart/form-data":
		form, err := multipart.NewReader(bytes.NewReader(raw), params["boundary"]).ReadForm(int64(len(raw)) + 1)
		if err == nil {
			defer form.RemoveAll() //nolint:errcheck
			fields := formValues(form.Value)
			for name, files := range form.File {
				for _, fh := range files {
					fields[name+".filename"] = fh.Filename
				}
			}
			return fields
		}
	}
	// Unparseable bodies are still scanned as a single string.
	return string(raw)
}

func formValues(vals map[string][]string) map[string]any {
	out := make(map[string]any, len(vals))
	for k, vs := range vals {
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		out[k] = items
	}
	return out
}

// threatScan rejects requests whose query, body or scanned headers match an
// injection signature. The response never names the matched pattern.
func (s *Server) threatScan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := scannedBody(r, rawBodyFromCtx(r.Context()))
		findings := threat.Scan(threat.Surfaces{Query: r.URL.Query(), Body: body, Headers: r.Header})
		if len(findings) > 0 {
			for _, f := range findings {
				threatsTotal.WithLabelValues(surfaceOf(f.Field)).Inc()
			}
			fields := requestFields(r)
			fields["threats"] = findings
			s.logger.LogEvent(models.EventInjectionAttempt, models.SeverityHigh, fields)
			writeError(w, http.StatusBadRequest, KindThreatDetected, "Invalid input detected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fileIntegrity refuses service while any watched file differs from its
// startup checksum.
func (s *Server) fileIntegrity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if changed := s.files.Check(); len(changed) > 0 {
			fields := requestFields(r)
			fields["files"] = changed
			s.logger.LogEvent(models.EventIntegrityFailure, models.SeverityCritical, fields)
			writeError(w, http.StatusInternalServerError, KindIntegrityFailure, "Service integrity check failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dataIntegrity verifies signed envelopes and hands the inner data to the
// handler. Plain bodies pass through.
func (s *Server) dataIntegrity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := rawBodyFromCtx(r.Context())
		if !hasBodyMethod(r.Method) || len(raw) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		env, signed := integrity.Unwrap(raw)
		if !signed {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.signer.Verify(env); err != nil {
			fields := requestFields(r)
			fields["reason"] = err.Error()
			s.logger.LogEvent(models.EventIntegrityFailure, models.SeverityHigh, fields)
			fail(w, err)
			return
		}
		stateFromCtx(r.Context()).body = env.Data
		r.Body = io.NopCloser(bytes.NewReader(env.Data))
		r.ContentLength = int64(len(env.Data))
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer credential into a principal.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.verifier.Authenticate(r)
		if err != nil {
			fail(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// requirePermission gates a route on one permission of the principal's role.
func requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := policy.Require(principalFromCtx(r.Context()), perm); err != nil {
				fail(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := policy.RequireAdmin(principalFromCtx(r.Context())); err != nil {
			fail(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// activity records the authenticated action for anomaly detection and
// writes the audit trail once the handler has answered.
func (s *Server) activity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		p := principalFromCtx(r.Context())
		if p == nil {
			return
		}
		action := r.Method + " " + r.URL.RequestURI()
		ip := clientIP(r)
		for _, ev := range s.detector.Record(p.ID, action, ip) {
			anomaliesTotal.WithLabelValues(ev.Kind).Inc()
			s.logger.LogEvent(models.EventSuspiciousActivity, ev.Severity, anomalyFields(ev))
		}

		result := "success"
		if rr.statusCode >= http.StatusBadRequest {
			result = "failure"
		}
		s.logger.LogAudit(action, p, audit.Session{IP: ip, UserAgent: r.UserAgent()}, r.URL.Path, result)
	})
}

func anomalyFields(ev anomaly.Event) map[string]any {
	fields := map[string]any{
		"userId":  ev.PrincipalID,
		"anomaly": ev.Kind,
	}
	switch ev.Kind {
	case anomaly.KindHighFrequency:
		fields["actionsInLastMinute"] = ev.Count
	case anomaly.KindMultipleOrigins:
		fields["originCount"] = ev.Count
		fields["origins"] = ev.Origins
	}
	return fields
}
