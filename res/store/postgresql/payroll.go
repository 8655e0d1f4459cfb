package postgresql

import (
	"context"
	"fmt"
	"time"

	"djhub-api/res/store"

	"gorm.io/gorm/clause"
)

type payrollStore struct {
	*storeImpl
}

func NewPayrollStore(rootStore *storeImpl) *payrollStore {
	return &payrollStore{storeImpl: rootStore}
}

// MUTATIONS

// Create relies on the (staff_profile_id, pay_period_start, pay_period_end) unique index,
// so two concurrent runs for the same period cannot both insert.
func (ps *payrollStore) Create(ctx context.Context, record *store.PayrollRecord) error {
	result := ps.db.WithContext(ctx).Omit("StaffProfile").Create(record)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create payroll record")
	}
	return nil
}

func (ps *payrollStore) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	result := ps.db.WithContext(ctx).Model(&store.PayrollRecord{}).
		Where("id = ? AND status = ?", id, store.PayrollStatusPending).
		Updates(map[string]interface{}{
			"status":  store.PayrollStatusPaid,
			"paid_at": paidAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("%w (payroll id: %s is not pending)", store.ErrStaleVersion, id)
	}
	return nil
}

func (ps *payrollStore) SetStatementURI(ctx context.Context, id, uri string) error {
	result := ps.db.WithContext(ctx).Model(&store.PayrollRecord{}).
		Where("id = ?", id).
		Update("statement_uri", uri)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("payroll record not found (id: %s)", id)
	}
	return nil
}

// QUERIES

func (ps *payrollStore) Get(ctx context.Context, id string) (*store.PayrollRecord, error) {
	var record store.PayrollRecord
	result := ps.db.WithContext(ctx).Where("id = ?", id).First(&record)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &record, nil
}

func (ps *payrollStore) GetForUpdate(ctx context.Context, id string) (*store.PayrollRecord, error) {
	var record store.PayrollRecord
	result := ps.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&record)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &record, nil
}

func (ps *payrollStore) ListByStaffProfile(ctx context.Context, staffProfileID string) ([]*store.PayrollRecord, error) {
	var records []*store.PayrollRecord
	err := ps.db.WithContext(ctx).
		Where("staff_profile_id = ?", staffProfileID).
		Order("pay_period_start DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
