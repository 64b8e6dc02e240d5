package storage

import "errors"

// Storage error constants
var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose email is taken
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned when email/password verification fails.
	// Callers must not distinguish it from ErrUserNotFound in user-facing output.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned when a login is attempted against a
	// temporarily locked account
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrAccountInactive is returned when a login is attempted against a
	// deactivated account
	ErrAccountInactive = errors.New("account inactive")

	// ErrPlanNotFound is returned when a membership plan is not found
	ErrPlanNotFound = errors.New("plan not found")

	// ErrSubscriptionNotFound is returned when a subscription is not found
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")
)
