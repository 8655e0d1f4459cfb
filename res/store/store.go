package store

import (
	"context"
)

type Store interface {
	Users() UserStore
	Bookings() BookingStore
	StaffProfiles() StaffProfileStore
	Availability() AvailabilityStore
	Payrolls() PayrollStore
	Transactions() TransactionStore
	AuditRecords() AuditStore

	// RunInTx runs fn against a Store bound to a single database transaction.
	// Returning an error from fn rolls the transaction back.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	Create(ctx context.Context, ID, displayName, email string, role UserRole) (*User, error)
	UpdateRole(ctx context.Context, userID string, role UserRole) (*User, error)
}
