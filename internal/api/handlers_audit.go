package api

import (
	"net/http"
	"strconv"

	"github.com/org/servercatalog/internal/anomaly"
)

// AnomaliesHandler handles GET /audit/anomalies (admin only). Query
// parameters: user (exact principal id) and limit (default 100).
func (s *Server) AnomaliesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	user := q.Get("user")

	entries := make([]anomaly.Summary, 0)
	for _, sum := range s.detector.Snapshot() {
		if user != "" && sum.PrincipalID != user {
			continue
		}
		entries = append(entries, sum)
		if len(entries) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": entries,
		"thresholds": map[string]any{
			"actionsPerMinute": anomaly.FrequencyLimit,
			"distinctOrigins":  anomaly.OriginLimit,
			"historySize":      anomaly.HistorySize,
		},
	})
}
