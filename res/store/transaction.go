package store

import (
	"context"
	"time"
)

// TransactionType represents the type of money movement
type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT" // Client paid into escrow
	TransactionTypePayout  TransactionType = "PAYOUT"  // Escrow released to the DJ
	TransactionTypeRefund  TransactionType = "REFUND"  // Escrow returned to the client
)

// Transaction is a completed money movement confirmed by the payment processor
type Transaction struct {
	ID        string          `gorm:"primaryKey;size:50;unique"`
	Type      TransactionType `gorm:"size:20;not null;index:idx_transaction_type"`
	Booking   *Booking        `gorm:"foreignKey:BookingID"`
	BookingID string          `gorm:"size:50;not null;index:idx_transaction_booking"`

	Amount   int64  `gorm:"not null"`
	Currency string `gorm:"size:3;not null"`

	// Processor side
	ExternalReference string `gorm:"size:256;not null;unique"`
	IdempotencyKey    string `gorm:"size:256;not null"`

	ActorID     string `gorm:"size:50;not null"`
	Description string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;index:idx_transaction_created"`
}

// TransactionStore defines the data access interface for transactions
type TransactionStore interface {
	Create(ctx context.Context, transaction *Transaction) error

	// ListByBooking retrieves all transactions of a booking, oldest first
	ListByBooking(ctx context.Context, bookingID string) ([]*Transaction, error)
}
