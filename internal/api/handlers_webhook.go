package api

import (
	"errors"
	"net/http"

	"github.com/org/servercatalog/internal/webhook"
	"github.com/org/servercatalog/pkg/models"
)

// WebhookRegisterHandler handles POST /webhook
func (s *Server) WebhookRegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
		Secret string   `json:"secret"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeValidation(w, []string{"body must be a JSON object with url, events and secret"})
		return
	}
	if req.URL == "" {
		writeValidation(w, []string{"url is required"})
		return
	}

	p := principalFromCtx(r.Context())
	reg, err := s.webhooks.Register(p.ID, req.URL, req.Events, req.Secret)
	if err != nil {
		if errors.Is(err, webhook.ErrURLRejected) {
			fields := requestFields(r)
			fields["userId"] = p.ID
			fields["reason"] = err.Error()
			s.logger.LogEvent(models.EventSuspiciousActivity, models.SeverityMedium, fields)
			fail(w, err)
			return
		}
		s.internalError(w, r, err, nil)
		return
	}

	fields := requestFields(r)
	fields["userId"] = p.ID
	fields["webhookId"] = reg.ID
	s.logger.LogEvent(models.EventConfigurationChange, models.SeverityLow, fields)
	writeJSON(w, http.StatusCreated, reg)
}
