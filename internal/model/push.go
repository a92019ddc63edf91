package model

import "time"

type PushSubscription struct {
	Key       string    `json:"key"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	User      string    `json:"user"`
	UpdatedAt time.Time `json:"updatedAt"`
}
