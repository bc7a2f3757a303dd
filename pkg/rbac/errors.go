package rbac

import "errors"

var (
	// ErrUserNotFound is returned by a RoleStore when the user row does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleStoreUnavailable wraps any failure to read the role store.
	// Callers must treat it as a server error, never as a denial.
	ErrRoleStoreUnavailable = errors.New("role store unavailable")

	// ErrInvalidCapability is returned when a capability name cannot be parsed
	ErrInvalidCapability = errors.New("invalid capability")
)
