package model

import "time"

type Slot struct {
	ID              string    `json:"id"`
	User            string    `json:"user"`
	Date            string    `json:"date"`
	StartTime       string    `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Recurring       bool      `json:"recurring,omitempty"`
	Completed       bool      `json:"completed,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// AlertType identifies one of the four reminders a slot can trigger.
type AlertType string

const (
	AlertOwnerTen    AlertType = "owner-ten"
	AlertOwnerStart  AlertType = "owner-start"
	AlertOthersTen   AlertType = "others-ten"
	AlertOthersStart AlertType = "others-start"
)

// AlertTypes lists every alert type in firing order.
var AlertTypes = []AlertType{AlertOwnerTen, AlertOthersTen, AlertOwnerStart, AlertOthersStart}

// ForOwner reports whether the alert goes to the slot owner rather than everyone else.
func (a AlertType) ForOwner() bool {
	return a == AlertOwnerTen || a == AlertOwnerStart
}

// SlotAlert records that an alert was already dispatched.
type SlotAlert struct {
	Key       string    `json:"key"`
	SlotID    string    `json:"slotId"`
	AlertType AlertType `json:"alertType"`
	FiredAt   time.Time `json:"firedAt"`
}
