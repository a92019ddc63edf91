package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/waterhq/internal/household"
	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/slot"
	"github.com/dukerupert/waterhq/internal/store"
	"github.com/dukerupert/waterhq/internal/websocket"
)

// SlotRepo is the slot persistence the handler needs.
type SlotRepo interface {
	Create(ctx context.Context, s model.Slot) (*model.Slot, error)
	GetByID(ctx context.Context, id string) (*model.Slot, error)
	List(ctx context.Context) ([]model.Slot, error)
	ListForDate(ctx context.Context, date string) ([]model.Slot, error)
	Update(ctx context.Context, s model.Slot) (*model.Slot, error)
	Complete(ctx context.Context, id string) (*model.Slot, error)
	Delete(ctx context.Context, id string) error
}

// AlertResetter forgets which alerts a slot has already fired.
type AlertResetter interface {
	ResetSlot(ctx context.Context, slotID string) error
}

type SlotHandler struct {
	slots  SlotRepo
	alerts AlertResetter
	hub    *websocket.Hub
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewSlotHandler(slots SlotRepo, alerts AlertResetter, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *SlotHandler {
	if loc == nil {
		loc = time.Local
	}
	return &SlotHandler{slots: slots, alerts: alerts, hub: hub, loc: loc, now: time.Now, logger: logger}
}

func (h *SlotHandler) broadcast(action, id string, data any) {
	if h.hub != nil {
		h.hub.Publish(websocket.EntitySlot, action, id, data)
	}
}

type slotRequest struct {
	User            string `json:"user"`
	Date            string `json:"date"`
	StartTime       string `json:"startTime"`
	DurationMinutes int    `json:"durationMinutes"`
	Recurring       bool   `json:"recurring"`
}

func (req slotRequest) slot() model.Slot {
	return model.Slot{
		User:            strings.TrimSpace(req.User),
		Date:            strings.TrimSpace(req.Date),
		StartTime:       strings.TrimSpace(req.StartTime),
		DurationMinutes: req.DurationMinutes,
		Recurring:       req.Recurring,
	}
}

func validateSlot(s model.Slot) error {
	if err := slot.Validate(s); err != nil {
		return err
	}
	if !household.ValidDuration(s.DurationMinutes) {
		return errors.New("durationMinutes must be one of 15, 20, 30, 45, 60")
	}
	return nil
}

// List handles GET /api/slots
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slots.List(r.Context())
	if err != nil {
		h.logger.Error("list slots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

type todaySlot struct {
	model.Slot
	EffectiveStart time.Time `json:"effectiveStart"`
	Range          string    `json:"range"`
	Color          string    `json:"color"`
}

// Today handles GET /api/slots/today
func (h *SlotHandler) Today(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc)
	slots, err := h.slots.ListForDate(r.Context(), slot.Today(now))
	if err != nil {
		h.logger.Error("list today's slots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}

	out := []todaySlot{}
	for _, s := range slots {
		if !slot.IsForToday(s, now) {
			continue
		}
		start, err := slot.EffectiveStart(s, now)
		if err != nil {
			h.logger.Warn("skipping malformed slot", "id", s.ID, "error", err)
			continue
		}
		rng, _ := slot.FormatRange(s.StartTime, s.DurationMinutes)
		out = append(out, todaySlot{Slot: s, EffectiveStart: start, Range: rng, Color: household.Color(s.User)})
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/slots
func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s := req.slot()
	if err := validateSlot(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.slots.Create(r.Context(), s)
	if err != nil {
		h.logger.Error("create slot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create slot")
		return
	}

	h.broadcast("created", created.ID, created)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/slots/{id}. Changing a slot re-arms its alerts.
func (h *SlotHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.slots.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		h.logger.Error("get slot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load slot")
		return
	}

	var req slotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s := req.slot()
	s.ID = existing.ID
	s.Completed = existing.Completed
	if err := validateSlot(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.slots.Update(r.Context(), s)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		h.logger.Error("update slot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update slot")
		return
	}
	if err := h.alerts.ResetSlot(r.Context(), id); err != nil {
		h.logger.Warn("reset slot alerts", "id", id, "error", err)
	}

	h.broadcast("updated", updated.ID, updated)
	writeJSON(w, http.StatusOK, updated)
}

// Complete handles POST /api/slots/{id}/complete
func (h *SlotHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	done, err := h.slots.Complete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		h.logger.Error("complete slot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete slot")
		return
	}

	h.broadcast("completed", done.ID, done)
	writeJSON(w, http.StatusOK, done)
}

// Delete handles DELETE /api/slots/{id}
func (h *SlotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.slots.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	if err != nil {
		h.logger.Error("delete slot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete slot")
		return
	}
	if err := h.alerts.ResetSlot(r.Context(), id); err != nil {
		h.logger.Warn("reset slot alerts", "id", id, "error", err)
	}

	h.broadcast("deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
