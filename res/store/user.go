package store

import "time"

type UserRole string

const (
	UserRoleClient      UserRole = "CLIENT"       // Books DJs for events
	UserRoleDJ          UserRole = "DJ"           // Service provider, owns a StaffProfile
	UserRoleGlobalAdmin UserRole = "GLOBAL_ADMIN" // Platform administrator (set via env var)
)

type User struct {
	ID          string   `gorm:"primaryKey;size:50;unique"`
	DisplayName string   `gorm:"size:50;not null"`
	Role        UserRole `gorm:"size:50;not null;default:'CLIENT'"`
	Email       string   `gorm:"size:256;not null;unique"`

	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
}

// IsGlobalAdmin checks if the user has global admin privileges
func (u *User) IsGlobalAdmin() bool {
	return u.Role == UserRoleGlobalAdmin
}

func (u *User) IsDJ() bool {
	return u.Role == UserRoleDJ
}

func (u *User) IsClient() bool {
	return u.Role == UserRoleClient
}
