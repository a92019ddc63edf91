package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/slot"
)

// Releaser frees the shower when the auto-release ceiling has passed.
type Releaser interface {
	ReleaseIfExpired(ctx context.Context) (bool, error)
}

type SlotLister interface {
	ListForDate(ctx context.Context, date string) ([]model.Slot, error)
}

// AlertRecorder is the at-most-once serialization point for slot alerts.
type AlertRecorder interface {
	TryFire(ctx context.Context, slotID string, alertType model.AlertType, firedAt time.Time) (bool, error)
	CleanupBefore(ctx context.Context, before time.Time) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) (Result, error)
}

// Sweeper removes stale rows, such as expired sign-in codes.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Scheduler periodically triggers fresh checks of store state: the
// auto-release ceiling and due slot alerts. It holds no authoritative
// clock state of its own, so any number of instances may run.
type Scheduler struct {
	mu       sync.RWMutex
	releaser Releaser
	slots    SlotLister
	alerts   AlertRecorder
	notifier Notifier
	sweepers []Sweeper
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	lastDay  string
	cancel   context.CancelFunc
	done     chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocation sets the zone that defines "today" for slots.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithSweeper(sw Sweeper) SchedulerOption {
	return func(s *Scheduler) {
		s.sweepers = append(s.sweepers, sw)
	}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(releaser Releaser, slots SlotLister, alerts AlertRecorder, notifier Notifier, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		releaser: releaser,
		slots:    slots,
		alerts:   alerts,
		notifier: notifier,
		interval: 30 * time.Second,
		loc:      time.Local,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one round of checks. Failures are logged and the round moves on.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().In(s.loc)

	if _, err := s.releaser.ReleaseIfExpired(ctx); err != nil {
		s.logger.Error("auto-release check", "error", err)
	}

	s.checkSlotAlerts(ctx, now)
	s.cleanup(ctx, now)
}

func (s *Scheduler) checkSlotAlerts(ctx context.Context, now time.Time) {
	slots, err := s.slots.ListForDate(ctx, slot.Today(now))
	if err != nil {
		s.logger.Error("list slots for alerts", "error", err)
		return
	}
	if slot.WarningSpansMidnight(now) {
		next, err := s.slots.ListForDate(ctx, slot.Today(now.AddDate(0, 0, 1)))
		if err != nil {
			s.logger.Error("list tomorrow's slots for alerts", "error", err)
		}
		slots = mergeSlots(slots, next)
	}

	for _, sl := range slots {
		for _, alert := range slot.DueAlerts(sl, now) {
			won, err := s.alerts.TryFire(ctx, sl.ID, alert, now)
			if err != nil {
				s.logger.Error("record slot alert", "key", slot.AlertKey(sl.ID, alert), "error", err)
				continue
			}
			if !won {
				continue
			}

			res, err := s.notifier.Notify(ctx, SlotAlertNotification(sl, alert))
			if err != nil {
				s.logger.Error("send slot alert", "key", slot.AlertKey(sl.ID, alert), "error", err)
				continue
			}
			s.logger.Info("slot alert sent", "key", slot.AlertKey(sl.ID, alert), "sent", res.Sent, "attempted", res.Attempted)
		}
	}
}

// mergeSlots appends the slots of b not already in a. Recurring slots come
// back from every date's listing.
func mergeSlots(a, b []model.Slot) []model.Slot {
	seen := make(map[string]struct{}, len(a))
	for _, sl := range a {
		seen[sl.ID] = struct{}{}
	}
	for _, sl := range b {
		if _, ok := seen[sl.ID]; !ok {
			a = append(a, sl)
		}
	}
	return a
}

// cleanup runs once per local day. Alert records from previous days are
// dropped so recurring slots can alert again.
func (s *Scheduler) cleanup(ctx context.Context, now time.Time) {
	day := slot.Today(now)
	s.mu.Lock()
	if s.lastDay == day {
		s.mu.Unlock()
		return
	}
	s.lastDay = day
	s.mu.Unlock()

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if n, err := s.alerts.CleanupBefore(ctx, midnight); err != nil {
		s.logger.Error("cleanup slot alerts", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up slot alerts", "deleted", n)
	}

	for _, sw := range s.sweepers {
		if _, err := sw.DeleteExpired(ctx); err != nil {
			s.logger.Error("sweep expired rows", "error", err)
		}
	}
}
