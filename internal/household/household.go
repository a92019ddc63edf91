// Package household holds the fixed roster and the timing thresholds shared
// by the scheduler, the occupancy state machine and the HTTP layer.
package household

import (
	"fmt"
	"slices"
	"time"
)

// Users is the household roster in display order.
var Users = []string{"Chase", "Livia", "A.J.", "Dad", "Mom"}

// Colors maps each member to their display color token.
var Colors = map[string]string{
	"Chase": "bg-sky",
	"Livia": "bg-lime",
	"A.J.":  "bg-yolk",
	"Dad":   "bg-bubblegum",
	"Mom":   "bg-mint",
}

// Durations are the bookable slot lengths in minutes.
var Durations = []int{15, 20, 30, 45, 60}

const (
	AutoReleaseSeconds = 2700
	MinShowerSeconds   = 5

	AutoRelease     = AutoReleaseSeconds * time.Second
	MinShower       = MinShowerSeconds * time.Second
	SlotAlertWindow = 90 * time.Second
	TenMinutes      = 10 * time.Minute

	UserCookieName = "showerTimerUser"
)

// IsMember reports whether name is on the roster.
func IsMember(name string) bool {
	return slices.Contains(Users, name)
}

// Color returns the member's color token, or bg-white for strangers.
func Color(name string) string {
	if c, ok := Colors[name]; ok {
		return c
	}
	return "bg-white"
}

// ValidDuration reports whether minutes is one of the bookable lengths.
func ValidDuration(minutes int) bool {
	return slices.Contains(Durations, minutes)
}

// FormatElapsed renders seconds as MM:SS; minutes are not wrapped at 60.
func FormatElapsed(seconds int64) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatDuration renders seconds as "30s", "5m" or "2m 5s".
func FormatDuration(seconds int64) string {
	min, sec := seconds/60, seconds%60
	switch {
	case min == 0:
		return fmt.Sprintf("%ds", sec)
	case sec > 0:
		return fmt.Sprintf("%dm %ds", min, sec)
	default:
		return fmt.Sprintf("%dm", min)
	}
}

// TimeAgo renders how long before now ts happened.
func TimeAgo(ts, now time.Time) string {
	diff := int64(now.Sub(ts) / time.Second)
	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	default:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
}
