package store

import (
	"context"
	"time"
)

// Availability is one recurring weekly window in which a DJ accepts bookings
type Availability struct {
	ID             string        `gorm:"primaryKey;size:50;unique"`
	StaffProfile   *StaffProfile `gorm:"foreignKey:StaffProfileID"`
	StaffProfileID string        `gorm:"size:50;not null;index:idx_availability_staff"`

	DayOfWeek time.Weekday `gorm:"not null"`
	StartTime string       `gorm:"size:5;not null"` // e.g., "18:00"
	EndTime   string       `gorm:"size:5;not null"` // e.g., "23:00"

	Notes string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
}

// AvailabilityStore defines the data access interface for availability windows
type AvailabilityStore interface {
	Create(ctx context.Context, availability *Availability) error

	// ListByStaffProfile returns the windows of a DJ ordered by day and start time
	ListByStaffProfile(ctx context.Context, staffProfileID string) ([]*Availability, error)

	// ReplaceForStaffProfile swaps the whole weekly schedule of a DJ
	ReplaceForStaffProfile(ctx context.Context, staffProfileID string, windows []*Availability) error
}
