package api

import (
	"errors"
	"net/http"

	"github.com/org/servercatalog/internal/graphql"
	"github.com/org/servercatalog/internal/threat"
	"github.com/org/servercatalog/pkg/models"
)

// GraphQLHandler handles POST /graphql. Queries are screened for
// introspection, fragment spreads and deep nesting before parsing.
func (s *Server) GraphQLHandler(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req graphql.Request
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, []string{"body must be a JSON object with a query"})
		return
	}

	threats, err := threat.ScanGraphQL(req.Query)
	if errors.Is(err, threat.ErrEmptyQuery) {
		writeValidation(w, []string{"query is required"})
		return
	}
	if len(threats) > 0 {
		threatsTotal.WithLabelValues("graphql").Inc()
		fields := requestFields(r)
		fields["threats"] = threats
		fields["query"] = truncateQuery(req.Query)
		s.logger.LogEvent(models.EventInjectionAttempt, models.SeverityHigh, fields)
		writeError(w, http.StatusBadRequest, KindThreatDetected, "Invalid input detected")
		return
	}

	res := s.graphql.Execute(r.Context(), principalFromCtx(r.Context()), req)
	code := http.StatusOK
	if res.Data == nil && res.HasErrors() {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, res)
}

func truncateQuery(q string) string {
	const max = 200
	if len(q) <= max {
		return q
	}
	return q[:max] + "..."
}
