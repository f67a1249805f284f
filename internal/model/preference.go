package model

import "time"

// Preference is one persisted UI preference (page size, default view, ...),
// keyed by name. Replaces the browser-local storage the dashboard used to
// lean on.
type Preference struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"size:256;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
