package model

import "time"

// LoginCode is a one-time sign-in code mailed to an identifier.
type LoginCode struct {
	ID         int64      `json:"id"`
	Identifier string     `json:"identifier"`
	Code       string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
}
