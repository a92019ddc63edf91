package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/waterhq/internal/analytics"
	"github.com/dukerupert/waterhq/internal/model"
)

const (
	maxInsightsBody    = 1 << 20
	maxInsightsEntries = 5000
)

type InsightsAsker interface {
	Ask(ctx context.Context, summary *analytics.Summary) (string, error)
}

type InsightsHandler struct {
	asker     InsightsAsker
	analytics Summarizer
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func NewInsightsHandler(asker InsightsAsker, analytics Summarizer, loc *time.Location, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{asker: asker, analytics: analytics, loc: loc, now: time.Now, logger: logger}
}

type insightsRequest struct {
	Entries []model.LogEntry `json:"entries"`
}

// Insights handles POST /api/analytics-insights. The posted entries are
// summarized; with none posted the stored log is used. Like the analytics
// panel it is best effort: any failure is logged and answered with an
// empty insight.
func (h *InsightsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInsightsBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Entries) > maxInsightsEntries {
		req.Entries = req.Entries[:maxInsightsEntries]
	}

	summary, err := h.summary(r.Context(), req.Entries)
	if err != nil {
		h.logger.Warn("summarize for insights", "error", err)
	}
	if summary == nil {
		writeJSON(w, http.StatusOK, map[string]string{"insights": ""})
		return
	}

	answer, err := h.asker.Ask(r.Context(), summary)
	if err != nil {
		h.logger.Warn("ask for insights", "showers", summary.TotalShowers, "error", err)
		answer = ""
	}
	writeJSON(w, http.StatusOK, map[string]string{"insights": answer})
}

func (h *InsightsHandler) summary(ctx context.Context, entries []model.LogEntry) (*analytics.Summary, error) {
	if len(entries) == 0 {
		return h.analytics.Summary(ctx, analytics.DefaultDays)
	}
	return analytics.Compute(entries, h.now(), maxAnalyticsDays, h.loc), nil
}
