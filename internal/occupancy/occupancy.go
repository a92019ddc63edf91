// Package occupancy implements the FREE / OCCUPIED state machine for the
// shower. The auto-release ceiling is evaluated whenever state is read, so
// no single process has to own a running timer.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/waterhq/internal/household"
	"github.com/dukerupert/waterhq/internal/model"
)

var (
	ErrOccupied    = errors.New("shower is occupied")
	ErrFree        = errors.New("shower is free")
	ErrNotOccupant = errors.New("only the current occupant can end the shower")
	ErrUnknownUser = errors.New("unknown user")
)

// Store is the persistence the state machine needs. Claim and Release are
// conditional writes: Claim succeeds only while the shower is free, Release
// only while started_at still equals observed. Release appends entry (when
// non-nil) atomically with clearing occupancy.
type Store interface {
	Status(ctx context.Context) (model.ShowerStatus, error)
	Claim(ctx context.Context, user string, startedAt time.Time) (bool, error)
	Release(ctx context.Context, observed time.Time, entry *model.LogEntry) (bool, error)
}

type Kind string

const (
	KindStarted  Kind = "started"
	KindEnded    Kind = "ended"
	KindReleased Kind = "released"
)

// Transition describes one state change. Entry is nil when the session was
// too short to log.
type Transition struct {
	Kind      Kind
	User      string
	StartedAt time.Time
	At        time.Time
	Entry     *model.LogEntry
}

type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithHook registers a callback invoked after every successful transition.
func WithHook(fn func(context.Context, Transition)) Option {
	return func(m *Machine) {
		m.hooks = append(m.hooks, fn)
	}
}

type Machine struct {
	store  Store
	now    func() time.Time
	hooks  []func(context.Context, Transition)
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Eligible reports whether a session started at startedAt has hit the
// auto-release ceiling at now.
func Eligible(startedAt, now time.Time) bool {
	return now.Sub(startedAt) >= household.AutoRelease
}

// SessionEntry builds the log entry for a finished session. It returns false
// for sessions shorter than household.MinShower, which are discarded.
func SessionEntry(user string, startedAt, endedAt time.Time) (model.LogEntry, bool) {
	secs := int64(endedAt.Sub(startedAt) / time.Second)
	if secs < household.MinShowerSeconds {
		return model.LogEntry{}, false
	}
	return model.LogEntry{
		User:            user,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: secs,
	}, true
}

// Current returns the occupancy, releasing it first when the ceiling has passed.
func (m *Machine) Current(ctx context.Context) (model.ShowerStatus, error) {
	st, _, err := m.current(ctx)
	return st, err
}

// ReleaseIfExpired releases an over-long session. Safe to call from any
// number of concurrent observers; at most one of them wins.
func (m *Machine) ReleaseIfExpired(ctx context.Context) (bool, error) {
	_, released, err := m.current(ctx)
	return released, err
}

// Start moves FREE to OCCUPIED(user, now).
func (m *Machine) Start(ctx context.Context, user string) (model.ShowerStatus, error) {
	if !household.IsMember(user) {
		return model.ShowerStatus{}, fmt.Errorf("%w: %q", ErrUnknownUser, user)
	}

	st, _, err := m.current(ctx)
	if err != nil {
		return model.ShowerStatus{}, err
	}
	if st.Occupied() {
		return st, ErrOccupied
	}

	now := m.now().Truncate(time.Millisecond)
	ok, err := m.store.Claim(ctx, user, now)
	if err != nil {
		return model.ShowerStatus{}, fmt.Errorf("claim shower: %w", err)
	}
	if !ok {
		return model.ShowerStatus{}, ErrOccupied
	}

	m.emit(ctx, Transition{Kind: KindStarted, User: user, StartedAt: now, At: now})
	return model.ShowerStatus{CurrentUser: user, StartedAt: now}, nil
}

// End moves OCCUPIED(user, t) to FREE. Only the occupant may end a session.
func (m *Machine) End(ctx context.Context, user string) (Transition, error) {
	st, _, err := m.current(ctx)
	if err != nil {
		return Transition{}, err
	}
	if !st.Occupied() {
		return Transition{}, ErrFree
	}
	if st.CurrentUser != user {
		return Transition{}, ErrNotOccupant
	}

	tr, ok, err := m.release(ctx, st, KindEnded)
	if err != nil {
		return Transition{}, err
	}
	if !ok {
		// Lost to a concurrent auto-release.
		return Transition{}, ErrFree
	}
	return tr, nil
}

func (m *Machine) current(ctx context.Context) (model.ShowerStatus, bool, error) {
	st, err := m.store.Status(ctx)
	if err != nil {
		return model.ShowerStatus{}, false, fmt.Errorf("read shower status: %w", err)
	}
	if !st.Occupied() || !Eligible(st.StartedAt, m.now()) {
		return st, false, nil
	}

	_, ok, err := m.release(ctx, st, KindReleased)
	if err != nil {
		return model.ShowerStatus{}, false, err
	}
	if !ok {
		// Someone else changed the state first; report what is there now.
		st, err = m.store.Status(ctx)
		if err != nil {
			return model.ShowerStatus{}, false, fmt.Errorf("read shower status: %w", err)
		}
		return st, false, nil
	}
	return model.ShowerStatus{}, true, nil
}

func (m *Machine) release(ctx context.Context, st model.ShowerStatus, kind Kind) (Transition, bool, error) {
	now := m.now().Truncate(time.Millisecond)
	tr := Transition{Kind: kind, User: st.CurrentUser, StartedAt: st.StartedAt, At: now}

	var entry *model.LogEntry
	if e, keep := SessionEntry(st.CurrentUser, st.StartedAt, now); keep {
		entry = &e
	}

	ok, err := m.store.Release(ctx, st.StartedAt, entry)
	if err != nil {
		return Transition{}, false, fmt.Errorf("release shower: %w", err)
	}
	if !ok {
		return Transition{}, false, nil
	}

	tr.Entry = entry
	if kind == KindReleased {
		m.logger.Info("auto-released shower", "user", st.CurrentUser, "started_at", st.StartedAt)
	}
	m.emit(ctx, tr)
	return tr, true, nil
}

func (m *Machine) emit(ctx context.Context, tr Transition) {
	for _, fn := range m.hooks {
		fn(ctx, tr)
	}
}
