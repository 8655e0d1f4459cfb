package middleware

import (
	"context"

	"djhub-api/sys/settlement"
)

// AdminGate authorizes settlement operations from the request context
type AdminGate struct{}

func (AdminGate) RequireAdmin(ctx context.Context) (string, error) {
	if actorID := getSystemActor(ctx); actorID != "" {
		return actorID, nil
	}

	user := GetCurrentUser(ctx)
	if user == nil {
		return "", settlement.PermissionDenied("Authentication required")
	}
	if !user.IsGlobalAdmin() {
		return "", settlement.PermissionDenied("Admin access required")
	}
	return user.ID, nil
}

func (AdminGate) CurrentActor(ctx context.Context) (string, error) {
	if actorID := getSystemActor(ctx); actorID != "" {
		return actorID, nil
	}

	user := GetCurrentUser(ctx)
	if user == nil {
		return "", settlement.PermissionDenied("Authentication required")
	}
	return user.ID, nil
}
