package api

import (
	"net/http"
	"time"

	"github.com/org/servercatalog/internal/integrity"
	"github.com/org/servercatalog/internal/threat"
)

// HealthHandler handles GET /health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).Seconds(),
	})
}

// SecurityStatusHandler handles GET /security-status. The file check here is
// informational; a changed file already fails the request in fileIntegrity.
func (s *Server) SecurityStatusHandler(w http.ResponseWriter, r *http.Request) {
	deps := integrity.DependencyReport()
	changed := s.files.Check()
	if changed == nil {
		changed = []string{}
	}

	overall := "SECURE"
	if deps.VulnerabilityCount > 0 || len(changed) > 0 {
		overall = "WARNING"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
		"integrity": map[string]any{
			"watchedFiles": s.files.Watched(),
			"changedFiles": changed,
		},
		"rateLimiting": map[string]any{
			"window":        s.limiter.Window().String(),
			"max":           s.limiter.Max(),
			"activeClients": s.limiter.Len(),
		},
		"overallStatus": overall,
	})
}

// NotFoundHandler answers unmatched routes, echoing the escaped path.
func (s *Server) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":   KindNotFound,
		"message": "Route not found",
		"path":    threat.Sanitize(r.URL.Path),
	})
}
