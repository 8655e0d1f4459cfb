package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PayrollStatus string

const (
	PayrollStatusPending PayrollStatus = "PENDING"
	PayrollStatusPaid    PayrollStatus = "PAID"
)

// PayrollRecord is the gross-to-net computation of one pay period for one employee.
// Amounts are in cents of Currency.
type PayrollRecord struct {
	ID             string         `gorm:"primaryKey;size:50;unique"`
	StaffProfile   *StaffProfile  `gorm:"foreignKey:StaffProfileID"`
	StaffProfileID string         `gorm:"size:50;not null;uniqueIndex:idx_payroll_staff_period,priority:1"`
	PayPeriodStart datatypes.Date `gorm:"not null;uniqueIndex:idx_payroll_staff_period,priority:2"`
	PayPeriodEnd   datatypes.Date `gorm:"not null;uniqueIndex:idx_payroll_staff_period,priority:3"`

	HoursWorked     decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	EventsCompleted int             `gorm:"not null"`
	HourlyRate      int64           `gorm:"not null"`
	EventBonus      int64           `gorm:"not null"`
	Currency        string          `gorm:"size:3;not null"`

	GrossPay int64 `gorm:"not null"`

	// Employee withholdings
	FederalTax             int64 `gorm:"not null"`
	StateTax               int64 `gorm:"not null"`
	EmployeeSocialSecurity int64 `gorm:"not null"`
	EmployeeMedicare       int64 `gorm:"not null"`

	NetPay int64 `gorm:"not null"`

	// Employer liabilities
	EmployerSocialSecurity int64 `gorm:"not null"`
	EmployerMedicare       int64 `gorm:"not null"`
	EmployerFUTA           int64 `gorm:"column:employer_futa;not null"`
	EmployerSUTA           int64 `gorm:"column:employer_suta;not null"`
	WorkersComp            int64 `gorm:"not null"`
	TotalEmployerTax       int64 `gorm:"not null"`

	Status       PayrollStatus `gorm:"size:20;not null;default:'PENDING'"`
	PaidAt       *time.Time
	StatementURI *string `gorm:"size:512"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
}

// PayrollStore defines the data access interface for payroll records
type PayrollStore interface {
	// Create inserts the record. A second record for the same staff member and
	// period fails with ErrUniqueViolation.
	Create(ctx context.Context, record *PayrollRecord) error

	Get(ctx context.Context, id string) (*PayrollRecord, error)

	GetForUpdate(ctx context.Context, id string) (*PayrollRecord, error)

	// MarkPaid moves a PENDING record to PAID
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error

	SetStatementURI(ctx context.Context, id, uri string) error

	ListByStaffProfile(ctx context.Context, staffProfileID string) ([]*PayrollRecord, error)
}
