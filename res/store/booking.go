package store

import (
	"context"
	"time"

	"djhub-api/res/money"

	"gorm.io/datatypes"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPendingReview  BookingStatus = "PENDING_REVIEW"  // Requested by the client
	BookingStatusAdminReviewing BookingStatus = "ADMIN_REVIEWING" // Picked up by an admin
	BookingStatusStaffAssigned  BookingStatus = "STAFF_ASSIGNED"  // DJ assigned, payment outstanding
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"       // DJ assigned and paid
	BookingStatusCompleted      BookingStatus = "COMPLETED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
)

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

type PayoutStatus string

const (
	PayoutStatusNone      PayoutStatus = "NONE"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
)

type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "HELD"
	EscrowStatusReleased EscrowStatus = "RELEASED"
	EscrowStatusRefunded EscrowStatus = "REFUNDED"
)

type DisputeStatus string

const (
	DisputeStatusNone     DisputeStatus = "NONE"
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
)

// Booking is one client/DJ engagement and the escrow state of its funds.
// All amounts are in cents of Currency.
type Booking struct {
	ID                  string  `gorm:"primaryKey;size:50;unique"`
	Client              *User   `gorm:"foreignKey:ClientID"`
	ClientID            string  `gorm:"size:50;not null;index:idx_booking_client"`
	ProviderID          *string `gorm:"size:50;index:idx_booking_provider_date,priority:1"` // StaffProfile ID
	RequestedProviderID *string `gorm:"size:50"`

	// Event
	EventType string         `gorm:"size:50;not null"`
	EventDate datatypes.Date `gorm:"not null;index:idx_booking_provider_date,priority:2"`
	StartTime string         `gorm:"size:5;not null"` // "HH:MM"
	EndTime   string         `gorm:"size:5;not null"`
	Notes     string         `gorm:"type:text"`

	// Pricing
	QuotedPrice int64  `gorm:"not null"`
	Currency    string `gorm:"size:3;not null"`

	Status BookingStatus `gorm:"size:20;not null;default:'PENDING_REVIEW';index:idx_booking_status"`

	// Payment
	IsPaid            bool `gorm:"not null;default:false"`
	PaidAt            *time.Time
	CheckoutReference *string `gorm:"size:256"`
	PaymentReference  *string `gorm:"size:256"`

	// Settlement
	EscrowStatus    EscrowStatus `gorm:"size:20;not null;default:'HELD'"`
	PayoutStatus    PayoutStatus `gorm:"size:20;not null;default:'NONE'"`
	PayoutAmount    *int64
	PayoutReference *string `gorm:"size:256"`
	PayoutAt        *time.Time
	RefundAmount    *int64
	RefundReference *string `gorm:"size:256"`
	RefundedAt      *time.Time

	// PendingSettlement names the processor leg whose outcome is unknown.
	// Money movement is blocked until it is reconciled.
	PendingSettlement string `gorm:"size:30;not null;default:''"`

	// Dispute
	DisputeStatus     DisputeStatus `gorm:"size:20;not null;default:'NONE'"`
	DisputeReason     string        `gorm:"type:text"`
	DisputeResolution *string       `gorm:"size:30"`
	DisputeOpenedAt   *time.Time
	DisputeResolvedAt *time.Time

	CancellationReason string `gorm:"type:text"`
	CancelledAt        *time.Time
	CompletedAt        *time.Time

	Version int64 `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;index:idx_booking_created"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
}

func (b *Booking) Quoted() money.Money {
	return money.New(b.QuotedPrice, b.Currency)
}

func (b *Booking) PaidOut() money.Money {
	if b.PayoutAmount == nil {
		return money.Zero(b.Currency)
	}
	return money.New(*b.PayoutAmount, b.Currency)
}

func (b *Booking) Refunded() money.Money {
	if b.RefundAmount == nil {
		return money.Zero(b.Currency)
	}
	return money.New(*b.RefundAmount, b.Currency)
}

func (b *Booking) Day() time.Time {
	return time.Time(b.EventDate)
}

// BookingStore defines the data access interface for bookings
type BookingStore interface {
	Create(ctx context.Context, booking *Booking) error

	Get(ctx context.Context, id string) (*Booking, error)

	// GetForUpdate retrieves a booking and locks its row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id string) (*Booking, error)

	// Update writes the booking if its version still matches the stored one, then bumps it.
	// Returns ErrStaleVersion otherwise.
	Update(ctx context.Context, booking *Booking) error

	// MarkSettlementPending flags a booking whose processor call ended with an unknown outcome
	MarkSettlementPending(ctx context.Context, bookingID, leg string) error

	// ListActiveByProviders returns STAFF_ASSIGNED and CONFIRMED bookings on the given day, keyed by provider
	ListActiveByProviders(ctx context.Context, day time.Time, providerIDs []string) (map[string][]*Booking, error)

	// ListCompletedByProvider returns COMPLETED bookings of a provider with event dates inside [from, to]
	ListCompletedByProvider(ctx context.Context, providerID string, from, to time.Time) ([]*Booking, error)

	ListAll(ctx context.Context, filters BookingFilters) ([]*Booking, error)
}

// BookingFilters contains filter options for listing bookings
type BookingFilters struct {
	Status        *BookingStatus
	ProviderID    *string
	ClientID      *string
	DisputeStatus *DisputeStatus
	StartDate     *time.Time
	EndDate       *time.Time
	Limit         int
	Offset        int
	OrderBy       string // e.g., "event_date DESC"
}
