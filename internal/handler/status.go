package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/occupancy"
)

// Occupancy is the shower state machine.
type Occupancy interface {
	Current(ctx context.Context) (model.ShowerStatus, error)
	Start(ctx context.Context, user string) (model.ShowerStatus, error)
	End(ctx context.Context, user string) (occupancy.Transition, error)
}

type StatusHandler struct {
	occ    Occupancy
	logger *slog.Logger
}

func NewStatusHandler(occ Occupancy, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{occ: occ, logger: logger}
}

type userRequest struct {
	User string `json:"user"`
}

// Get handles GET /api/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.occ.Current(r.Context())
	if err != nil {
		h.logger.Error("read status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Start handles POST /api/status/start
func (h *StatusHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	st, err := h.occ.Start(r.Context(), req.User)
	switch {
	case errors.Is(err, occupancy.ErrUnknownUser):
		writeError(w, http.StatusBadRequest, "unknown user")
	case errors.Is(err, occupancy.ErrOccupied):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "status": st})
	case err != nil:
		h.logger.Error("start shower", "user", req.User, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start shower")
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

type endResponse struct {
	Status model.ShowerStatus `json:"status"`
	// Entry is null when the session was too short to log.
	Entry *model.LogEntry `json:"entry"`
}

// End handles POST /api/status/end
func (h *StatusHandler) End(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tr, err := h.occ.End(r.Context(), req.User)
	switch {
	case errors.Is(err, occupancy.ErrFree):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, occupancy.ErrNotOccupant):
		writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		h.logger.Error("end shower", "user", req.User, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to end shower")
	default:
		writeJSON(w, http.StatusOK, endResponse{Entry: tr.Entry})
	}
}
