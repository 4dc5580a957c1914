package repository

import (
	"context"
	"errors"
	"fmt"

	"torb/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository persists per-user settings.
type PreferenceRepository interface {
	Get(ctx context.Context, username string) (*model.UserPreference, error)
	Upsert(ctx context.Context, pref *model.UserPreference) error
}

// gormPreferenceRepository is the GORM implementation.
type gormPreferenceRepository struct {
	db *gorm.DB
}

// NewGormPreferenceRepository creates a GORM preference repository.
func NewGormPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &gormPreferenceRepository{db: db}
}

// Get returns the stored preferences, or nil when the user has none yet.
func (r *gormPreferenceRepository) Get(ctx context.Context, username string) (*model.UserPreference, error) {
	var pref model.UserPreference
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for %s: %w", username, err)
	}
	return &pref, nil
}

// Upsert creates or replaces the user's preference row.
func (r *gormPreferenceRepository) Upsert(ctx context.Context, pref *model.UserPreference) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"theme", "muted_uploaders"}),
	}).Create(pref).Error
	if err != nil {
		return fmt.Errorf("failed to upsert preferences for %s: %w", pref.Username, err)
	}
	return nil
}
