package model

import (
	"encoding/json"
	"time"
)

// ShowerStatus is the singleton occupancy record. A zero StartedAt means free.
type ShowerStatus struct {
	CurrentUser string
	StartedAt   time.Time
}

// Occupied reports whether someone is in the shower.
func (s ShowerStatus) Occupied() bool {
	return s.CurrentUser != "" && !s.StartedAt.IsZero()
}

// MarshalJSON emits both fields as null while the shower is free.
func (s ShowerStatus) MarshalJSON() ([]byte, error) {
	type wire struct {
		CurrentUser *string    `json:"currentUser"`
		StartedAt   *time.Time `json:"startedAt"`
	}
	var w wire
	if s.Occupied() {
		w.CurrentUser = &s.CurrentUser
		w.StartedAt = &s.StartedAt
	}
	return json.Marshal(w)
}

type LogEntry struct {
	ID              int64     `json:"id"`
	User            string    `json:"user"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
}
