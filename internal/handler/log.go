package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/waterhq/internal/analytics"
	"github.com/dukerupert/waterhq/internal/model"
)

const (
	defaultLogLimit  = 20
	maxLogLimit      = 500
	maxAnalyticsDays = 365
)

type LogLister interface {
	List(ctx context.Context, limit int) ([]model.LogEntry, error)
}

type Summarizer interface {
	Summary(ctx context.Context, days int) (*analytics.Summary, error)
}

type LogHandler struct {
	log       LogLister
	analytics Summarizer
	logger    *slog.Logger
}

func NewLogHandler(log LogLister, analytics Summarizer, logger *slog.Logger) *LogHandler {
	return &LogHandler{log: log, analytics: analytics, logger: logger}
}

// List handles GET /api/log?limit=
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", defaultLogLimit, maxLogLimit)
	entries, err := h.log.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list shower log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load log")
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Analytics handles GET /api/analytics?days=. Analytics are best effort: a
// load failure is logged and answered with an empty summary.
func (h *LogHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", analytics.DefaultDays, maxAnalyticsDays)
	summary, err := h.analytics.Summary(r.Context(), days)
	if err != nil {
		h.logger.Warn("compute analytics", "days", days, "error", err)
		summary = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// intParam reads a positive integer query parameter, falling back to def
// when it is absent or malformed and clamping to ceiling.
func intParam(r *http.Request, name string, def, ceiling int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, ceiling)
}
