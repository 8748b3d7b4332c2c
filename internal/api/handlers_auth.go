package api

import (
	"net/http"

	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/pkg/models"
)

const (
	defaultLoginUser = "demo-user"
	defaultLoginRole = models.RoleUser
)

// LoginHandler handles POST /login. The body is optional: {"username", "role"}.
// Missing or unknown values fall back to the demo user with the user role.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		// use defaults if the body is absent or malformed
		req.Username, req.Role = "", ""
	}
	if req.Username == "" {
		req.Username = defaultLoginUser
	}
	if !policy.KnownRole(req.Role) {
		req.Role = defaultLoginRole
	}

	token, err := s.issuer.Issue(req.Username, req.Role)
	if err != nil {
		s.internalError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"tokenType": "Bearer",
		"expiresIn": int(s.issuer.TTL().Seconds()),
		"user": map[string]any{
			"id":          req.Username,
			"role":        req.Role,
			"permissions": policy.PermissionsOf(req.Role),
		},
	})
}
