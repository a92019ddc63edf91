package handler

import (
	"net/http"
	"net/url"

	"github.com/dukerupert/waterhq/internal/household"
)

const userCookieMaxAge = 365 * 24 * 60 * 60

// PersistedUser returns the remembered household member, or "" when the
// cookie is missing or does not name a current member.
func PersistedUser(r *http.Request) string {
	c, err := r.Cookie(household.UserCookieName)
	if err != nil {
		return ""
	}
	name, err := url.QueryUnescape(c.Value)
	if err != nil || !household.IsMember(name) {
		return ""
	}
	return name
}

// GetUser handles GET /api/me/user
func GetUser(w http.ResponseWriter, r *http.Request) {
	name := PersistedUser(r)
	if name == "" {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": name, "color": household.Color(name)})
}

// PutUser handles PUT /api/me/user. The preference is cosmetic, so a bad
// value clears it rather than failing the request.
func PutUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	decodeJSON(w, r, &req)

	if !household.IsMember(req.User) {
		clearUserCookie(w, r)
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     household.UserCookieName,
		Value:    url.QueryEscape(req.User),
		Path:     "/",
		MaxAge:   userCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": req.User, "color": household.Color(req.User)})
}

// DeleteUser handles DELETE /api/me/user
func DeleteUser(w http.ResponseWriter, r *http.Request) {
	clearUserCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func clearUserCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     household.UserCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}
