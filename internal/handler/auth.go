package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/waterhq/internal/allowlist"
	"github.com/dukerupert/waterhq/internal/email"
	"github.com/dukerupert/waterhq/internal/identity"
	"github.com/dukerupert/waterhq/internal/middleware"
	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/store"
)

const (
	captchaCookieName = "waterhq_captcha"
	maxCodeAttempts   = 5
)

type CaptchaVerifier interface {
	Verified(ctx context.Context, token, remoteIP string) bool
}

type TokenIssuer interface {
	Issue(ident identity.Identity) (string, error)
	IssueCaptchaPass() (string, error)
}

type PassVerifier interface {
	VerifyCaptchaPass(pass string) error
}

type LoginCodes interface {
	Create(ctx context.Context, identifier string) (*model.LoginCode, error)
	Latest(ctx context.Context, identifier string) (*model.LoginCode, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkUsed(ctx context.Context, id int64) error
}

type CodeMailer interface {
	SendSignInCode(ctx context.Context, to, code string, ttl time.Duration) error
}

type AllowlistGate interface {
	CheckAndWhitelist(ctx context.Context, kind allowlist.Kind, identifier string) (allowlist.Result, error)
}

type AuthHandler struct {
	captcha CaptchaVerifier
	issuer  TokenIssuer
	passes  PassVerifier
	codes   LoginCodes
	mailer  CodeMailer
	gate    AllowlistGate
	codeTTL time.Duration
	logger  *slog.Logger
}

func NewAuthHandler(
	captcha CaptchaVerifier,
	issuer TokenIssuer,
	passes PassVerifier,
	codes LoginCodes,
	mailer CodeMailer,
	gate AllowlistGate,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		captcha: captcha,
		issuer:  issuer,
		passes:  passes,
		codes:   codes,
		mailer:  mailer,
		gate:    gate,
		codeTTL: store.LoginCodeTTL,
		logger:  logger,
	}
}

type captchaRequest struct {
	Token string `json:"token"`
}

// Captcha handles POST /api/auth/captcha. Any verification failure keeps the
// caller locked out; success grants a short-lived pass cookie.
func (h *AuthHandler) Captcha(w http.ResponseWriter, r *http.Request) {
	var req captchaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !h.captcha.Verified(r.Context(), req.Token, middleware.RealIP(r)) {
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
		return
	}

	pass, err := h.issuer.IssueCaptchaPass()
	if err != nil {
		h.logger.Error("issue captcha pass", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"success": false})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     captchaCookieName,
		Value:    pass,
		Path:     "/api/auth",
		MaxAge:   int(identity.CaptchaPassTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type startRequest struct {
	Email string `json:"email"`
}

// EmailStart handles POST /api/auth/email/start. The response does not reveal
// whether the address is on the allowlist.
func (h *AuthHandler) EmailStart(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(captchaCookieName)
	if err != nil || h.passes.VerifyCaptchaPass(cookie.Value) != nil {
		writeError(w, http.StatusForbidden, "captcha required")
		return
	}

	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := allowlist.Normalize(allowlist.KindEmail, req.Email)
	if !strings.Contains(addr, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	lc, err := h.codes.Create(r.Context(), addr)
	if err != nil {
		h.logger.Error("create sign-in code", "error", err)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}
	if err := h.mailer.SendSignInCode(r.Context(), addr, lc.Code, h.codeTTL); err != nil {
		if errors.Is(err, email.ErrNotConfigured) {
			h.logger.Warn("email not configured, sign-in code not sent", "email", addr)
		} else {
			h.logger.Error("send sign-in code", "email", addr, "error", err)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// checkCode consumes one attempt against the pending code for addr and
// returns a user-facing message on failure.
func (h *AuthHandler) checkCode(ctx context.Context, addr, code string) (int, string) {
	latest, err := h.codes.Latest(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusUnauthorized, "Code has expired or already been used. Please request a new one."
	}
	if err != nil {
		h.logger.Error("look up sign-in code", "error", err)
		return http.StatusInternalServerError, "Internal error"
	}

	if latest.Attempts >= maxCodeAttempts {
		h.codes.MarkUsed(ctx, latest.ID)
		return http.StatusUnauthorized, "Too many incorrect attempts. Please request a new code."
	}

	if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(code)) != 1 {
		attempts, err := h.codes.IncrementAttempts(ctx, latest.ID)
		if err != nil {
			h.logger.Error("increment code attempts", "error", err)
			return http.StatusInternalServerError, "Internal error"
		}
		if attempts >= maxCodeAttempts {
			h.codes.MarkUsed(ctx, latest.ID)
			return http.StatusUnauthorized, "Too many incorrect attempts. Please request a new code."
		}
		return http.StatusUnauthorized, "Incorrect code. Please try again."
	}

	if err := h.codes.MarkUsed(ctx, latest.ID); err != nil {
		h.logger.Error("mark sign-in code used", "error", err)
		return http.StatusInternalServerError, "Internal error"
	}
	return http.StatusOK, ""
}

// EmailVerify handles POST /api/auth/email/verify. A correct code still has
// to pass the allowlist; a failed allowlist read denies.
func (h *AuthHandler) EmailVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := allowlist.Normalize(allowlist.KindEmail, req.Email)
	code := strings.TrimSpace(req.Code)
	if addr == "" || code == "" {
		writeError(w, http.StatusBadRequest, "Email and code are required")
		return
	}

	if status, msg := h.checkCode(r.Context(), addr, code); msg != "" {
		writeError(w, status, msg)
		return
	}

	res, err := h.gate.CheckAndWhitelist(r.Context(), allowlist.KindEmail, addr)
	if err != nil {
		h.logger.Error("allowlist check failed", "email", addr, "error", err)
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "Unable to verify access. Please sign in again.", "signOut": true})
		return
	}
	if !res.Allowed {
		h.logger.Warn("sign-in denied", "email", addr)
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "This account is not allowed.", "signOut": true})
		return
	}

	token, err := h.issuer.Issue(identity.Identity{Email: addr, EmailVerified: true})
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if res.Enrolled {
		h.logger.Info("new account enrolled", "email", addr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "enrolled": res.Enrolled})
}
