package store

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

// AuditRecord is one entry of the compliance trail of money-moving and assignment-changing operations
type AuditRecord struct {
	ID        string         `gorm:"primaryKey;size:50;unique"`
	ActorID   string         `gorm:"size:50;not null;index:idx_audit_actor"`
	Action    string         `gorm:"size:50;not null"`
	SubjectID string         `gorm:"size:50;not null;index:idx_audit_subject"` // booking or payroll ID
	Details   datatypes.JSON `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
}

type AuditStore interface {
	Record(ctx context.Context, actorID, action, subjectID string, details map[string]interface{}) error

	ListBySubject(ctx context.Context, subjectID string) ([]*AuditRecord, error)
}
