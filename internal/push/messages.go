package push

import (
	"fmt"

	"github.com/dukerupert/waterhq/internal/household"
	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/occupancy"
	"github.com/dukerupert/waterhq/internal/slot"
)

// StatusNotification builds the message other members get when the shower
// changes hands. The actor is always excluded.
func StatusNotification(tr occupancy.Transition) Notification {
	switch tr.Kind {
	case occupancy.KindStarted:
		return Notification{
			Title:       "Shower taken",
			Body:        fmt.Sprintf("%s is in the shower", tr.User),
			ExcludeUser: tr.User,
			Tag:         "shower-status",
		}
	case occupancy.KindReleased:
		return Notification{
			Title:       "Shower is free",
			Body:        fmt.Sprintf("%s's shower was auto-released after %d minutes", tr.User, household.AutoReleaseSeconds/60),
			ExcludeUser: tr.User,
			Tag:         "shower-status",
		}
	default:
		body := fmt.Sprintf("%s is done", tr.User)
		if tr.Entry != nil {
			body = fmt.Sprintf("%s is done (%s)", tr.User, household.FormatDuration(tr.Entry.DurationSeconds))
		}
		return Notification{
			Title:       "Shower is free",
			Body:        body,
			ExcludeUser: tr.User,
			Tag:         "shower-status",
		}
	}
}

// SlotAlertNotification builds the reminder for one alert of s. Owner alerts
// target the owner; the others variants go to everyone but the owner.
func SlotAlertNotification(s model.Slot, alert model.AlertType) Notification {
	when, err := slot.FormatRange(s.StartTime, s.DurationMinutes)
	if err != nil {
		when = s.StartTime
	}

	n := Notification{Tag: "slot-" + string(alert), URL: "/"}
	if alert.ForOwner() {
		n.TargetUsers = []string{s.User}
	} else {
		n.ExcludeUser = s.User
	}

	switch alert {
	case model.AlertOwnerTen:
		n.Title = "Your shower is in 10 minutes"
		n.Body = when
	case model.AlertOwnerStart:
		n.Title = "Time for your shower"
		n.Body = when
	case model.AlertOthersTen:
		n.Title = fmt.Sprintf("%s showers in 10 minutes", s.User)
		n.Body = when
	case model.AlertOthersStart:
		n.Title = fmt.Sprintf("%s's shower slot is starting", s.User)
		n.Body = when
	}
	return n
}
