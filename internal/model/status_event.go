package model

import "time"

// StatusEvent is a persisted online/offline transition for a centro, as
// observed by the reconciliation engine's status polling.
type StatusEvent struct {
	ID         int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	ClienteID  int64     `gorm:"index;not null" json:"cliente_id"`
	CentroID   int64     `gorm:"index;not null" json:"centro_id"`
	Nombre     string    `gorm:"size:256" json:"nombre"`
	UUIDEquipo string    `gorm:"size:128" json:"uuid_equipo"`
	Online     bool      `gorm:"not null" json:"online"`
	LastSeen   *string   `gorm:"size:64" json:"last_seen"`
	ObservedAt time.Time `gorm:"not null;index" json:"observed_at"`
}
