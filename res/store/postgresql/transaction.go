package postgresql

import (
	"context"
	"fmt"

	"djhub-api/res/store"

	"github.com/rs/xid"
)

type transactionStore struct {
	*storeImpl
}

func NewTransactionStore(rootStore *storeImpl) *transactionStore {
	return &transactionStore{storeImpl: rootStore}
}

func (ts *transactionStore) Create(ctx context.Context, transaction *store.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = fmt.Sprintf("txn_%s", xid.New().String())
	}
	result := ts.db.WithContext(ctx).Omit("Booking").Create(transaction)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create transaction")
	}
	return nil
}

func (ts *transactionStore) ListByBooking(ctx context.Context, bookingID string) ([]*store.Transaction, error) {
	var transactions []*store.Transaction
	err := ts.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
