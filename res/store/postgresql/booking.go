package postgresql

import (
	"context"
	"fmt"
	"time"

	"djhub-api/res/store"

	"github.com/graph-gophers/dataloader"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type bookingStore struct {
	*storeImpl
}

func NewBookingStore(rootStore *storeImpl) *bookingStore {
	return &bookingStore{storeImpl: rootStore}
}

// MUTATIONS

func (bs *bookingStore) Create(ctx context.Context, booking *store.Booking) error {
	if booking.Version == 0 {
		booking.Version = 1
	}
	result := bs.db.WithContext(ctx).Create(booking)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create booking")
	}
	return nil
}

func (bs *bookingStore) Update(ctx context.Context, booking *store.Booking) error {
	prevVersion := booking.Version
	booking.Version = prevVersion + 1

	result := bs.db.WithContext(ctx).Model(booking).
		Where("version = ?", prevVersion).
		Select("*").Omit("CreatedAt", "Client").
		Updates(booking)

	if result.Error != nil {
		booking.Version = prevVersion
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		booking.Version = prevVersion
		return fmt.Errorf("%w (booking id: %s, version: %d)", store.ErrStaleVersion, booking.ID, prevVersion)
	}
	return nil
}

func (bs *bookingStore) MarkSettlementPending(ctx context.Context, bookingID, leg string) error {
	result := bs.db.WithContext(ctx).Model(&store.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{
			"pending_settlement": leg,
			"version":            gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("%w (booking id: %s)", store.ErrNotFound, bookingID)
	}
	return nil
}

// QUERIES

func (bs *bookingStore) Get(ctx context.Context, id string) (*store.Booking, error) {
	var booking store.Booking
	result := bs.db.WithContext(ctx).Where("id = ?", id).First(&booking)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &booking, nil
}

func (bs *bookingStore) GetForUpdate(ctx context.Context, id string) (*store.Booking, error) {
	var booking store.Booking
	result := bs.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &booking, nil
}

func (bs *bookingStore) ListActiveByProviders(ctx context.Context, day time.Time, providerIDs []string) (map[string][]*store.Booking, error) {
	bookingsByProvider := make(map[string][]*store.Booking, len(providerIDs))
	if len(providerIDs) == 0 {
		return bookingsByProvider, nil
	}

	// Every provider goes into one batch, so all conflicts come from a single query
	loader := dataloader.NewBatchedLoader(
		bs.batchActiveBookings(day),
		dataloader.WithBatchCapacity(len(providerIDs)),
		dataloader.WithCache(&dataloader.NoCache{}),
	)

	data, errs := loader.LoadMany(ctx, dataloader.NewKeysFromStrings(providerIDs))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for i, providerID := range providerIDs {
		if i >= len(data) {
			break
		}
		if bookings, ok := data[i].([]*store.Booking); ok {
			bookingsByProvider[providerID] = bookings
		}
	}
	return bookingsByProvider, nil
}

func (bs *bookingStore) ListCompletedByProvider(ctx context.Context, providerID string, from, to time.Time) ([]*store.Booking, error) {
	var bookings []*store.Booking

	err := bs.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("status = ?", store.BookingStatusCompleted).
		Where("event_date >= ? AND event_date < ?", startOfDay(from), startOfDay(to).AddDate(0, 0, 1)).
		Order("event_date ASC, start_time ASC").
		Find(&bookings).Error

	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (bs *bookingStore) ListAll(ctx context.Context, filters store.BookingFilters) ([]*store.Booking, error) {
	query := bs.db.WithContext(ctx)
	query = bs.applyFilters(query, filters)

	var bookings []*store.Booking
	if err := query.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

// COMMON UTILITIES

func (bs *bookingStore) batchActiveBookings(day time.Time) dataloader.BatchFunc {
	return func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		dayStart := startOfDay(day)

		var bookings []*store.Booking
		err := bs.db.WithContext(ctx).
			Where("provider_id IN ?", keys.Keys()).
			Where("status IN ?", []store.BookingStatus{
				store.BookingStatusStaffAssigned,
				store.BookingStatusConfirmed,
			}).
			Where("event_date >= ? AND event_date < ?", dayStart, dayStart.AddDate(0, 0, 1)).
			Order("start_time ASC").
			Find(&bookings).Error
		if err != nil {
			return decorateBatchedQueriesWithError(err, keys)
		}

		grouped := make(map[string][]*store.Booking)
		for _, booking := range bookings {
			if booking.ProviderID != nil {
				grouped[*booking.ProviderID] = append(grouped[*booking.ProviderID], booking)
			}
		}

		results := make([]*dataloader.Result, len(keys))
		for i, key := range keys {
			results[i] = &dataloader.Result{Data: grouped[key.String()]}
		}
		return results
	}
}

func (bs *bookingStore) applyFilters(query *gorm.DB, filters store.BookingFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ProviderID != nil {
		query = query.Where("provider_id = ?", *filters.ProviderID)
	}
	if filters.ClientID != nil {
		query = query.Where("client_id = ?", *filters.ClientID)
	}
	if filters.DisputeStatus != nil {
		query = query.Where("dispute_status = ?", *filters.DisputeStatus)
	}
	if filters.StartDate != nil {
		query = query.Where("event_date >= ?", startOfDay(*filters.StartDate))
	}
	if filters.EndDate != nil {
		query = query.Where("event_date < ?", startOfDay(*filters.EndDate).AddDate(0, 0, 1))
	}

	if filters.OrderBy != "" {
		query = query.Order(filters.OrderBy)
	} else {
		query = query.Order("event_date DESC, created_at DESC")
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	return query
}

// startOfDay returns UTC midnight of the calendar day of t, the form event dates are stored in
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
