// Package slot resolves bookings against the wall clock: whether a booking
// applies today, when it effectively starts, and which reminders are due.
package slot

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dukerupert/waterhq/internal/household"
	"github.com/dukerupert/waterhq/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

var ErrInvalidSlot = errors.New("invalid slot")

var clockRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Today returns the calendar date of now in now's location as YYYY-MM-DD.
func Today(now time.Time) string {
	return now.Format(dateLayout)
}

// IsForToday reports whether the slot applies on now's calendar date.
// Recurring slots apply every day; the stored date is compared as a plain string.
func IsForToday(s model.Slot, now time.Time) bool {
	return s.Recurring || s.Date == Today(now)
}

// StartTimestamp combines the slot's stored date with its start time in loc.
func StartTimestamp(s model.Slot, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, s.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, s.Date)
	}
	return atClock(day, s.StartTime)
}

// EffectiveStart returns when the slot starts relative to now. Recurring
// slots start today regardless of their stored date.
func EffectiveStart(s model.Slot, now time.Time) (time.Time, error) {
	if s.Recurring {
		return atClock(now, s.StartTime)
	}
	return StartTimestamp(s, now.Location())
}

// AlertKey identifies one alert firing for one slot.
func AlertKey(slotID string, alertType model.AlertType) string {
	return slotID + ":" + string(alertType)
}

// DueAlerts returns the alerts whose firing window contains now. Ten-minute
// warnings open at start-10m and start alerts at start; each stays open for
// household.SlotAlertWindow. A warning for a slot just after midnight opens
// the evening before, so tomorrow's start is checked for it too.
func DueAlerts(s model.Slot, now time.Time) []model.AlertType {
	if s.Completed {
		return nil
	}

	var tenDue, startDue bool
	if start, ok := startOn(s, now); ok {
		tenDue = inWindow(now, start.Add(-household.TenMinutes))
		startDue = inWindow(now, start)
	}
	if next, ok := startOn(s, now.AddDate(0, 0, 1)); ok && !tenDue {
		tenDue = inWindow(now, next.Add(-household.TenMinutes))
	}

	var due []model.AlertType
	if tenDue {
		due = append(due, model.AlertOwnerTen, model.AlertOthersTen)
	}
	if startDue {
		due = append(due, model.AlertOwnerStart, model.AlertOthersStart)
	}
	return due
}

// WarningSpansMidnight reports whether a ten-minute warning due at now may
// belong to a slot on the next calendar date.
func WarningSpansMidnight(now time.Time) bool {
	return Today(now.Add(household.TenMinutes)) != Today(now)
}

// startOn returns when s starts on day's calendar date, if it applies then.
func startOn(s model.Slot, day time.Time) (time.Time, bool) {
	if !IsForToday(s, day) {
		return time.Time{}, false
	}
	start, err := EffectiveStart(s, day)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

// Validate checks a booking before it is stored.
func Validate(s model.Slot) error {
	if !household.IsMember(s.User) {
		return fmt.Errorf("%w: unknown user %q", ErrInvalidSlot, s.User)
	}
	if _, err := time.Parse(dateLayout, s.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSlot)
	}
	if !clockRegexp.MatchString(s.StartTime) {
		return fmt.Errorf("%w: startTime must be HH:MM", ErrInvalidSlot)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("%w: durationMinutes must be positive", ErrInvalidSlot)
	}
	return nil
}

// FormatRange renders "9:00 AM – 9:30 AM" for a start time and length.
func FormatRange(startTime string, durationMinutes int) (string, error) {
	start, err := time.Parse(clockLayout, startTime)
	if err != nil {
		return "", fmt.Errorf("%w: start time %q", ErrInvalidSlot, startTime)
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return start.Format("3:04 PM") + " – " + end.Format("3:04 PM"), nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start time %q", ErrInvalidSlot, clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location()), nil
}

func inWindow(now, opensAt time.Time) bool {
	return !now.Before(opensAt) && now.Before(opensAt.Add(household.SlotAlertWindow))
}
