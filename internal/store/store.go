package store

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"centros-monitor/internal/model"
)

// Store defines the interface for all local database operations: the
// transition journal, push subscriptions and persisted preferences.
type Store interface {
	RecordTransition(ctx context.Context, ev *model.StatusEvent) error
	RecentTransitions(ctx context.Context, clienteID int64, limit int) ([]model.StatusEvent, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForCliente(ctx context.Context, clienteID int64) ([]model.PushSubscription, error)

	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// RecordTransition appends one online/offline flip to the journal.
func (s *gormStore) RecordTransition(ctx context.Context, ev *model.StatusEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record status transition for centro %d: %w", ev.CentroID, err)
	}
	return nil
}

// RecentTransitions returns the newest journal entries, optionally filtered
// by client.
func (s *gormStore) RecentTransitions(ctx context.Context, clienteID int64, limit int) ([]model.StatusEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("observed_at DESC").Limit(limit)
	if clienteID != 0 {
		q = q.Where("cliente_id = ?", clienteID)
	}
	var events []model.StatusEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch status transitions: %w", err)
	}
	return events, nil
}

// UpsertSubscription creates or replaces a push subscription by endpoint.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "cliente_id"}),
	}).Create(sub).Error
}

// DeleteSubscription removes a push subscription by endpoint.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// SubscriptionsForCliente returns subscriptions scoped to a client plus the
// unscoped ones.
func (s *gormStore) SubscriptionsForCliente(ctx context.Context, clienteID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("cliente_id = ? OR cliente_id = 0", clienteID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for cliente %d: %w", clienteID, err)
	}
	return subs, nil
}

// GetPreference looks up one preference value; found is false when unset.
func (s *gormStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var pref model.Preference
	err := s.db.WithContext(ctx).First(&pref, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return pref.Value, true, nil
}

// SetPreference writes one preference value.
func (s *gormStore) SetPreference(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Preference{Key: key, Value: value}).Error
}

// IntPreference reads a preference as an int, falling back to def when unset
// or unparsable.
func IntPreference(ctx context.Context, s Store, key string, def int) int {
	raw, found, err := s.GetPreference(ctx, key)
	if err != nil || !found {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
