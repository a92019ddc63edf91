package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/waterhq/internal/config"
	"github.com/dukerupert/waterhq/internal/database"
	"github.com/dukerupert/waterhq/internal/identity"
	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/push"
	"github.com/dukerupert/waterhq/internal/store"
)

const testSecret = "0123456789abcdef0123"

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, _ push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[sub.Endpoint] {
		return io.ErrUnexpectedEOF
	}
	f.sent = append(f.sent, sub.Endpoint)
	return nil
}

type testEnv struct {
	handler http.Handler
	sender  *fakeSender
	token   string
	issuer  *identity.Issuer
	allow   *store.AllowlistStore
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		TokenSecret:       testSecret,
		TokenTTL:          time.Hour,
		SchedulerInterval: time.Minute,
		Location:          "UTC",
		VAPIDPublicKey:    "BPublicKey",
	}
	sender := &fakeSender{fail: map[string]bool{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(db, cfg, logger, WithPushSender(sender))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	allow := store.NewAllowlistStore(db)
	if _, err := allow.Add(context.Background(), "allowedEmails", "livia@example.com"); err != nil {
		t.Fatalf("seed allowlist: %v", err)
	}
	issuer := identity.NewIssuer(testSecret, time.Hour)
	token, err := issuer.Issue(identity.Identity{Email: "Livia@Example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testEnv{handler: srv.Router(), sender: sender, token: token, issuer: issuer, allow: allow}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func subscribeBody(endpoint, user string) map[string]any {
	return map[string]any{
		"subscription": map[string]any{
			"endpoint": endpoint,
			"keys":     map[string]string{"p256dh": "p", "auth": "a"},
		},
		"user": user,
	}
}

func TestPushRoutesAuth(t *testing.T) {
	env := setup(t)

	issue := func(ident identity.Identity) string {
		t.Helper()
		tok, err := env.issuer.Issue(ident)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return tok
	}
	stranger := issue(identity.Identity{Email: "stranger@example.com", EmailVerified: true})
	noClaims := issue(identity.Identity{Subject: "anon"})
	phoneOnly := issue(identity.Identity{PhoneNumber: "+15551234567"})
	unverified := issue(identity.Identity{Email: "livia@example.com"})

	if _, err := env.allow.Add(context.Background(), "allowedPhoneNumbers", "+15551234567"); err != nil {
		t.Fatalf("seed phone: %v", err)
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"subscribe without token", "/api/push-subscribe", "", http.StatusUnauthorized},
		{"subscribe garbage token", "/api/push-subscribe", "not-a-jwt", http.StatusUnauthorized},
		{"subscribe no identifier", "/api/push-subscribe", noClaims, http.StatusForbidden},
		{"subscribe not allowlisted", "/api/push-subscribe", stranger, http.StatusForbidden},
		{"subscribe phone only", "/api/push-subscribe", phoneOnly, http.StatusForbidden},
		{"subscribe unverified email", "/api/push-subscribe", unverified, http.StatusForbidden},
		{"subscribe allowed", "/api/push-subscribe", env.token, http.StatusOK},
		{"legacy subscribe allowed", "/push-subscribe", env.token, http.StatusOK},
		{"notify without token", "/api/push-notify", "", http.StatusUnauthorized},
		{"notify not allowlisted", "/api/push-notify", stranger, http.StatusForbidden},
		{"notify phone only", "/api/push-notify", phoneOnly, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any = subscribeBody("https://push.example/"+tt.name, "Livia")
			if tt.path == "/api/push-notify" {
				body = map[string]string{"title": "t", "body": "b"}
			}
			rec := env.do(t, http.MethodPost, tt.path, tt.token, body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPushNotifySentCount(t *testing.T) {
	env := setup(t)

	for endpoint, user := range map[string]string{
		"https://push.example/livia":  "Livia",
		"https://push.example/chase":  "Chase",
		"https://push.example/broken": "Chase",
	} {
		rec := env.do(t, http.MethodPost, "/api/push-subscribe", env.token, subscribeBody(endpoint, user))
		if rec.Code != http.StatusOK {
			t.Fatalf("subscribe %s: status %d", endpoint, rec.Code)
		}
	}
	env.sender.fail["https://push.example/broken"] = true

	rec := env.do(t, http.MethodPost, "/api/push-notify", env.token, map[string]any{
		"title":       "Shower is free",
		"body":        "go go go",
		"excludeUser": "Livia",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var res push.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Attempted != 2 {
		t.Errorf("attempted = %d, want 2", res.Attempted)
	}
	if res.Sent != 1 {
		t.Errorf("sent = %d, want 1", res.Sent)
	}
}

func TestPushNotifyValidation(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/api/push-notify", env.token, map[string]string{"title": "only a title"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/push-subscribe", env.token, map[string]string{"user": "Livia"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPublicRoutes(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/manifest.webmanifest", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("manifest status = %d, want 200", rec.Code)
	}
	var m struct {
		Name            string `json:"name"`
		BackgroundColor string `json:"background_color"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Name != "💧 WATER HQ" {
		t.Errorf("name = %q, want %q", m.Name, "💧 WATER HQ")
	}
	if m.BackgroundColor != "#F5F0E8" {
		t.Errorf("background_color = %q", m.BackgroundColor)
	}

	rec = env.do(t, http.MethodGet, "/api/push/vapid-key", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("vapid-key status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/ws", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ws without token status = %d, want 401", rec.Code)
	}
}

func TestStatusFlow(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/api/status", env.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/status/start", env.token, map[string]string{"user": "Livia"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/status/start", env.token, map[string]string{"user": "Chase"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/status/end", env.token, map[string]string{"user": "Chase"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-occupant end status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/status/end", env.token, map[string]string{"user": "Livia"})
	if rec.Code != http.StatusOK {
		t.Errorf("end status = %d, want 200", rec.Code)
	}
}

func TestAnalyticsInsightsRoute(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/api/analytics-insights", "", map[string]any{"entries": []any{}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", rec.Code)
	}

	// No provider key is configured, so the answer is empty rather than an error.
	rec = env.do(t, http.MethodPost, "/api/analytics-insights", env.token, map[string]any{"entries": []any{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := got["insights"]; !ok || v != "" {
		t.Errorf("body = %v, want empty insights", got)
	}
}
