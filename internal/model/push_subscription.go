package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// ClienteID scopes the subscription to one client account; zero means the
// subscriber wants transitions for every client.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	ClienteID int64     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}
