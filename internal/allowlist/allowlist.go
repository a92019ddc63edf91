// Package allowlist decides whether a verified identity may use the app.
// Every check fails closed: a read error is returned to the caller and must
// be treated as a denial, never as an allow.
package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

var (
	ErrNoIdentifier    = errors.New("identity carries no email or phone number")
	ErrMissingEmail    = errors.New("identity carries no email claim")
	ErrEmailUnverified = errors.New("email claim is not verified")
)

type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// Path returns the stored list an identifier of this kind lives in.
func (k Kind) Path() string {
	if k == KindPhone {
		return "allowedPhoneNumbers"
	}
	return "allowedEmails"
}

// Normalize canonicalises an identifier: trimmed, emails lower-cased, phone
// numbers stripped of spaces, dashes, dots and parentheses.
func Normalize(kind Kind, identifier string) string {
	id := strings.TrimSpace(identifier)
	if kind == KindPhone {
		return strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '.', '(', ')':
				return -1
			}
			return r
		}, id)
	}
	return strings.ToLower(id)
}

// Store is the persistence the gate needs.
type Store interface {
	Contains(ctx context.Context, path, identifier string) (bool, error)
	Add(ctx context.Context, path, identifier string) (bool, error)
}

// GraceSource reports the end of the current enrolment window.
type GraceSource interface {
	GraceUntil(ctx context.Context) (time.Time, error)
}

type Result struct {
	Allowed bool `json:"allowed"`
	// Enrolled is true when the identifier was added during a grace window.
	Enrolled bool `json:"enrolled,omitempty"`
}

type Gate struct {
	store  Store
	grace  GraceSource
	now    func() time.Time
	logger *slog.Logger
}

func NewGate(store Store, grace GraceSource, logger *slog.Logger) *Gate {
	return &Gate{store: store, grace: grace, now: time.Now, logger: logger}
}

// WithClock returns a copy of g that reads time from now.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	cp := *g
	cp.now = now
	return &cp
}

// CheckAndWhitelist reports whether identifier may sign in. A member is
// allowed without mutation. A non-member is allowed, and persisted, only
// while now is strictly before the grace deadline.
func (g *Gate) CheckAndWhitelist(ctx context.Context, kind Kind, identifier string) (Result, error) {
	id := Normalize(kind, identifier)
	if id == "" {
		return Result{}, ErrNoIdentifier
	}
	path := kind.Path()

	member, err := g.store.Contains(ctx, path, id)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	if member {
		return Result{Allowed: true}, nil
	}

	until, err := g.grace.GraceUntil(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read grace period: %w", err)
	}
	if until.IsZero() || !g.now().Before(until) {
		return Result{}, nil
	}

	if _, err := g.store.Add(ctx, path, id); err != nil {
		return Result{}, fmt.Errorf("enrol into %s: %w", path, err)
	}
	g.logger.Info("enrolled during grace period", "path", path, "identifier", id)
	return Result{Allowed: true, Enrolled: true}, nil
}

// Identity is the claim set the gate consumes.
type Identity interface {
	EmailClaim() string
	EmailVerifiedClaim() bool
}

// Authorize gates API calls on the verified email claim alone. A phone
// claim never authorizes a bearer token; phone numbers are only checked by
// sign-in flows that call CheckAndWhitelist directly.
func (g *Gate) Authorize(ctx context.Context, ident Identity) (Result, error) {
	email := ident.EmailClaim()
	if strings.TrimSpace(email) == "" {
		return Result{}, ErrMissingEmail
	}
	if !ident.EmailVerifiedClaim() {
		return Result{}, ErrEmailUnverified
	}
	return g.CheckAndWhitelist(ctx, KindEmail, email)
}

// ParseLegacy reads an exported allowlist that was stored either as a JSON
// array of strings or as an object whose values are strings, and returns the
// normalized, de-duplicated, sorted set.
func ParseLegacy(kind Kind, data []byte) ([]string, error) {
	var raw []string

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		raw = arr
	} else {
		var obj map[string]string
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("parse allowlist: expected array or object of strings")
		}
		for _, v := range obj {
			raw = append(raw, v)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		id := Normalize(kind, v)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
