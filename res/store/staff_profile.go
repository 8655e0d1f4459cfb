package store

import (
	"context"
	"time"

	"djhub-api/res/money"

	"github.com/shopspring/decimal"
)

// EmploymentType decides whether a DJ is paid per booking or through payroll
type EmploymentType string

const (
	EmploymentTypeContractor       EmploymentType = "CONTRACTOR"
	EmploymentTypePartTimeEmployee EmploymentType = "PART_TIME_EMPLOYEE"
	EmploymentTypeFullTimeEmployee EmploymentType = "FULL_TIME_EMPLOYEE"
)

func (e EmploymentType) IsEmployee() bool {
	return e == EmploymentTypePartTimeEmployee || e == EmploymentTypeFullTimeEmployee
}

// StaffProfile is the extended profile of a user with the DJ role
type StaffProfile struct {
	ID     string `gorm:"primaryKey;size:50;unique"`
	User   *User  `gorm:"foreignKey:UserID"`
	UserID string `gorm:"size:50;not null;unique;index:idx_staff_profile_user"`

	DisplayName string `gorm:"size:100;not null"`

	// Compensation
	EmploymentType            EmploymentType  `gorm:"size:30;not null;default:'CONTRACTOR'"`
	ContractorSplitPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:30"`
	HourlyRate                *int64          // cents, employees only
	EventBonus                *int64          // cents, employees only
	Currency                  string          `gorm:"size:3;not null"`

	// Payout destination at the payment processor
	PaymentAccountID      *string `gorm:"size:256"`
	PaymentAccountEnabled bool    `gorm:"not null;default:false"`

	// Performance
	AverageRating   float64 `gorm:"type:decimal(3,2);default:0.00"` // 0.00 to 5.00
	CompletedEvents int     `gorm:"not null;default:0"`

	IsActive        bool `gorm:"not null"`
	IsAcceptingWork bool `gorm:"not null"`

	// Weekly availability, ordered by day then start time
	Availability []*Availability `gorm:"foreignKey:StaffProfileID"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
}

func (p *StaffProfile) HourlyRateMoney() (money.Money, bool) {
	if p.HourlyRate == nil {
		return money.Money{}, false
	}
	return money.New(*p.HourlyRate, p.Currency), true
}

func (p *StaffProfile) EventBonusMoney() (money.Money, bool) {
	if p.EventBonus == nil {
		return money.Money{}, false
	}
	return money.New(*p.EventBonus, p.Currency), true
}

// StaffProfileStore defines the data access interface for staff profiles
type StaffProfileStore interface {
	Create(ctx context.Context, profile *StaffProfile) error

	// Get retrieves a staff profile by ID, with its availability windows
	Get(ctx context.Context, id string) (*StaffProfile, error)

	// GetForUpdate locks the profile row for the rest of the transaction.
	// Assignments to the same DJ are serialized on it.
	GetForUpdate(ctx context.Context, id string) (*StaffProfile, error)

	GetByUserID(ctx context.Context, userID string) (*StaffProfile, error)

	// ListActive retrieves every active profile with its availability windows
	ListActive(ctx context.Context) ([]*StaffProfile, error)

	// IncrementCompletedEvents bumps the completed events counter by one
	IncrementCompletedEvents(ctx context.Context, id string) error
}
