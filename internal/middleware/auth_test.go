package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/waterhq/internal/allowlist"
	"github.com/dukerupert/waterhq/internal/auth"
	"github.com/dukerupert/waterhq/internal/identity"
)

const testSecret = "middleware-test-secret"

type fakeAllowlist struct {
	members map[string]bool
	err     error
}

func (f *fakeAllowlist) Contains(_ context.Context, path, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[path+"/"+id], nil
}

func (f *fakeAllowlist) Add(_ context.Context, path, id string) (bool, error) {
	f.members[path+"/"+id] = true
	return true, nil
}

type noGrace struct{}

func (noGrace) GraceUntil(context.Context) (time.Time, error) { return time.Time{}, nil }

func newBearerHandler(t *testing.T, store *fakeAllowlist, reached *auth.AuthContext) http.Handler {
	t.Helper()
	gate := allowlist.NewGate(store, noGrace{}, slog.Default())
	return RequireBearer(identity.NewVerifier(testSecret), gate, slog.Default())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				t.Fatal("expected AuthContext in request context")
			}
			*reached = ac
			w.WriteHeader(http.StatusOK)
		}))
}

func bearerRequest(t *testing.T, ident identity.Identity) *http.Request {
	t.Helper()
	token, err := identity.NewIssuer(testSecret, time.Hour).Issue(ident)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/push-notify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireBearerMissingToken(t *testing.T) {
	var ac auth.AuthContext
	h := newBearerHandler(t, &fakeAllowlist{members: map[string]bool{}}, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/push-notify", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireBearerInvalidToken(t *testing.T) {
	var ac auth.AuthContext
	h := newBearerHandler(t, &fakeAllowlist{members: map[string]bool{}}, &ac)

	token, _ := identity.NewIssuer("some-other-secret", time.Hour).Issue(identity.Identity{Email: "mom@example.com"})
	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireBearerNoEmail(t *testing.T) {
	var ac auth.AuthContext
	h := newBearerHandler(t, &fakeAllowlist{members: map[string]bool{}}, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{Subject: "anon"}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireBearerNotAllowlisted(t *testing.T) {
	var ac auth.AuthContext
	h := newBearerHandler(t, &fakeAllowlist{members: map[string]bool{}}, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{Email: "stranger@example.com", EmailVerified: true}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireBearerStoreErrorFailsClosed(t *testing.T) {
	var ac auth.AuthContext
	store := &fakeAllowlist{members: map[string]bool{}, err: errors.New("database is locked")}
	h := newBearerHandler(t, store, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{Email: "mom@example.com", EmailVerified: true}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireBearerAllowed(t *testing.T) {
	var ac auth.AuthContext
	store := &fakeAllowlist{members: map[string]bool{"allowedEmails/mom@example.com": true}}
	h := newBearerHandler(t, store, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{Email: "Mom@Example.com", EmailVerified: true}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ac.Email != "Mom@Example.com" {
		t.Errorf("Email = %q, want %q", ac.Email, "Mom@Example.com")
	}
	if ac.Subject != "Mom@Example.com" {
		t.Errorf("Subject = %q, want the email fallback", ac.Subject)
	}
}

func TestRequireBearerPhoneOnlyForbidden(t *testing.T) {
	var ac auth.AuthContext
	store := &fakeAllowlist{members: map[string]bool{"allowedPhoneNumbers/+15551234567": true}}
	h := newBearerHandler(t, store, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{PhoneNumber: "+15551234567"}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if ac.PhoneNumber != "" {
		t.Error("handler reached with a phone-only token")
	}
}

func TestRequireBearerUnverifiedEmail(t *testing.T) {
	var ac auth.AuthContext
	store := &fakeAllowlist{members: map[string]bool{"allowedEmails/mom@example.com": true}}
	h := newBearerHandler(t, store, &ac)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(t, identity.Identity{Email: "mom@example.com"}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
