package postgresql

import (
	"context"
	"fmt"

	"djhub-api/res/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type staffProfileStore struct {
	*storeImpl
}

func NewStaffProfileStore(rootStore *storeImpl) *staffProfileStore {
	return &staffProfileStore{storeImpl: rootStore}
}

// MUTATIONS

func (sps *staffProfileStore) Create(ctx context.Context, profile *store.StaffProfile) error {
	result := sps.db.WithContext(ctx).Omit("Availability").Create(profile)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create staff profile")
	}
	return nil
}

func (sps *staffProfileStore) IncrementCompletedEvents(ctx context.Context, id string) error {
	result := sps.db.WithContext(ctx).Model(&store.StaffProfile{}).
		Where("id = ?", id).
		UpdateColumn("completed_events", gorm.Expr("completed_events + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("%w (staff profile id: %s)", store.ErrNotFound, id)
	}
	return nil
}

// QUERIES

func (sps *staffProfileStore) Get(ctx context.Context, id string) (*store.StaffProfile, error) {
	var profile store.StaffProfile
	result := sps.db.WithContext(ctx).
		Preload("Availability", orderWindows).
		Where("id = ?", id).
		First(&profile)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &profile, nil
}

func (sps *staffProfileStore) GetForUpdate(ctx context.Context, id string) (*store.StaffProfile, error) {
	var profile store.StaffProfile
	result := sps.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&profile)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}

	windows, err := sps.availabilityStore.ListByStaffProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.Availability = windows
	return &profile, nil
}

func (sps *staffProfileStore) GetByUserID(ctx context.Context, userID string) (*store.StaffProfile, error) {
	var profile store.StaffProfile
	result := sps.db.WithContext(ctx).
		Preload("Availability", orderWindows).
		Where("user_id = ?", userID).
		First(&profile)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &profile, nil
}

func (sps *staffProfileStore) ListActive(ctx context.Context) ([]*store.StaffProfile, error) {
	var profiles []*store.StaffProfile
	err := sps.db.WithContext(ctx).
		Preload("Availability", orderWindows).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func orderWindows(db *gorm.DB) *gorm.DB {
	return db.Order("day_of_week ASC, start_time ASC")
}
