package postgresql

import (
	"context"
	"fmt"
	"net/mail"
	"unicode/utf8"

	"djhub-api/res/store"
)

type userStore struct {
	*storeImpl
}

func NewUserStore(rootStore *storeImpl) *userStore {
	return &userStore{storeImpl: rootStore}
}

// MUTATIONS

func (uStore *userStore) Create(
	ctx context.Context,
	ID string,
	displayName string,
	email string,
	role store.UserRole,
) (*store.User, error) {
	newUser := &store.User{ID: ID}

	if !isValidRole(role) {
		return nil, fmt.Errorf("invalid user role (%s)", role)
	}
	newUser.Role = role

	// Display name validation

	if !utf8.ValidString(displayName) {
		return nil, fmt.Errorf("invalid user display name string (%s)", displayName)
	}

	displayNameLength := utf8.RuneCountInString(displayName)
	if displayNameLength == 0 {
		return nil, fmt.Errorf("invalid user display name string (empty)")
	} else if displayNameLength > 50 {
		return nil, fmt.Errorf("invalid user display name length (%d > 50)", displayNameLength)
	}

	newUser.DisplayName = displayName

	// Email validation

	if !utf8.ValidString(email) {
		return nil, fmt.Errorf("invalid user email address string")
	}
	emailAddr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, fmt.Errorf("invalid user email address")
	}
	newUser.Email = emailAddr.Address

	result := uStore.db.WithContext(ctx).Create(newUser)
	if result.Error != nil {
		return nil, translateError(result.Error)
	} else if result.RowsAffected != 1 {
		return nil, fmt.Errorf("failed to create user (id: %s)", ID)
	}

	return newUser, nil
}

func (uStore *userStore) UpdateRole(ctx context.Context, userID string, role store.UserRole) (*store.User, error) {
	if !isValidRole(role) {
		return nil, fmt.Errorf("invalid user role (%s)", role)
	}

	result := uStore.db.WithContext(ctx).Model(&store.User{}).
		Where("id = ?", userID).
		Update("role", role)

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w (user id: %s)", store.ErrNotFound, userID)
	}

	return uStore.Get(ctx, userID)
}

// QUERIES

func (uStore *userStore) Get(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	result := uStore.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &user, nil
}

func (uStore *userStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	var user store.User
	result := uStore.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &user, nil
}

func isValidRole(role store.UserRole) bool {
	return role == store.UserRoleClient || role == store.UserRoleDJ || role == store.UserRoleGlobalAdmin
}
