package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/waterhq/internal/auth"
	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/push"
)

// Relay is the push fan-out the handlers drive.
type Relay interface {
	Subscribe(ctx context.Context, sub push.Subscription, user string) (model.PushSubscription, error)
	Notify(ctx context.Context, n push.Notification) (push.Result, error)
}

type PushHandler struct {
	relay    Relay
	vapidKey string
	logger   *slog.Logger
}

func NewPushHandler(relay Relay, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{relay: relay, vapidKey: vapidPublicKey, logger: logger}
}

type subscribeRequest struct {
	Subscription *push.Subscription `json:"subscription"`
	User         string             `json:"user"`
}

// Subscribe handles POST /api/push-subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Subscription == nil || req.Subscription.Endpoint == "" || strings.TrimSpace(req.User) == "" {
		writeError(w, http.StatusBadRequest, "Missing subscription or user")
		return
	}

	_, err := h.relay.Subscribe(r.Context(), *req.Subscription, req.User)
	if errors.Is(err, push.ErrInvalidSubscription) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("store push subscription", "user", req.User, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type notifyRequest struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ExcludeUser string   `json:"excludeUser"`
	TargetUsers []string `json:"targetUsers"`
	URL         string   `json:"url"`
	Tag         string   `json:"tag"`
}

// Notify handles POST /api/push-notify
func (h *PushHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "title and body are required")
		return
	}

	res, err := h.relay.Notify(r.Context(), push.Notification{
		Title:       req.Title,
		Body:        req.Body,
		ExcludeUser: req.ExcludeUser,
		TargetUsers: req.TargetUsers,
		URL:         req.URL,
		Tag:         req.Tag,
	})
	if err != nil {
		h.logger.Error("push notify", "caller", auth.Identifier(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to send notifications")
		return
	}

	h.logger.Info("push notify", "caller", auth.Identifier(r.Context()), "attempted", res.Attempted, "sent", res.Sent)
	writeJSON(w, http.StatusOK, res)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidKey})
}
