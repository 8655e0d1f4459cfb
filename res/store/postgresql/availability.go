package postgresql

import (
	"context"
	"fmt"

	"djhub-api/res/store"

	"github.com/rs/xid"
)

type availabilityStore struct {
	*storeImpl
}

func NewAvailabilityStore(rootStore *storeImpl) *availabilityStore {
	return &availabilityStore{storeImpl: rootStore}
}

// MUTATIONS

func (as *availabilityStore) Create(ctx context.Context, availability *store.Availability) error {
	if availability.ID == "" {
		availability.ID = fmt.Sprintf("avl_%s", xid.New().String())
	}
	result := as.db.WithContext(ctx).Omit("StaffProfile").Create(availability)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create availability window")
	}
	return nil
}

func (as *availabilityStore) ReplaceForStaffProfile(ctx context.Context, staffProfileID string, windows []*store.Availability) error {
	err := as.db.WithContext(ctx).
		Where("staff_profile_id = ?", staffProfileID).
		Delete(&store.Availability{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear availability windows: %w", err)
	}

	for _, window := range windows {
		window.StaffProfileID = staffProfileID
		if err := as.Create(ctx, window); err != nil {
			return err
		}
	}
	return nil
}

// QUERIES

func (as *availabilityStore) ListByStaffProfile(ctx context.Context, staffProfileID string) ([]*store.Availability, error) {
	var windows []*store.Availability
	err := as.db.WithContext(ctx).
		Where("staff_profile_id = ?", staffProfileID).
		Order("day_of_week ASC, start_time ASC").
		Find(&windows).Error
	if err != nil {
		return nil, err
	}
	return windows, nil
}
