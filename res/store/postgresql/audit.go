package postgresql

import (
	"context"
	"encoding/json"
	"fmt"

	"djhub-api/res/store"

	"github.com/rs/xid"
	"gorm.io/datatypes"
)

type auditStore struct {
	*storeImpl
}

func NewAuditStore(rootStore *storeImpl) *auditStore {
	return &auditStore{storeImpl: rootStore}
}

func (as *auditStore) Record(ctx context.Context, actorID, action, subjectID string, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	record := &store.AuditRecord{
		ID:        fmt.Sprintf("aud_%s", xid.New().String()),
		ActorID:   actorID,
		Action:    action,
		SubjectID: subjectID,
		Details:   datatypes.JSON(raw),
	}

	result := as.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to create audit record (action: %s)", action)
	}
	return nil
}

func (as *auditStore) ListBySubject(ctx context.Context, subjectID string) ([]*store.AuditRecord, error) {
	var records []*store.AuditRecord
	err := as.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
