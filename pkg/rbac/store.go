package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RoleStore is the read-only view of the tenant's role and grant tables
type RoleStore interface {
	// GetUser returns the user row or ErrUserNotFound
	GetUser(ctx context.Context, userID int64) (*UserRecord, error)
	// ListActiveRoles returns the names of the user's active role assignments
	ListActiveRoles(ctx context.Context, userID int64) ([]string, error)
	// ListPageGrants returns the granted page permissions of the user's active roles
	ListPageGrants(ctx context.Context, userID int64) ([]PageGrant, error)
	// ListTableGrants returns one row per (active role, table) pair
	ListTableGrants(ctx context.Context, userID int64) ([]TableGrant, error)
}

// SQLStore reads roles and grants from a tenant database
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a role store backed by db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetUser retrieves the user's organization, department and primary role
func (s *SQLStore) GetUser(ctx context.Context, userID int64) (*UserRecord, error) {
	query := `
		SELECT u.id, u.organization_id, u.department_id, u.primary_role_id
		FROM users u
		WHERE u.id = $1
	`

	var user UserRecord
	var departmentID, primaryRoleID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.OrganizationID,
		&departmentID,
		&primaryRoleID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if departmentID.Valid {
		user.DepartmentID = &departmentID.Int64
	}
	if primaryRoleID.Valid {
		user.PrimaryRoleID = &primaryRoleID.Int64
	}

	return &user, nil
}

// ListActiveRoles retrieves the role names of all active assignments
func (s *SQLStore) ListActiveRoles(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND ur.is_active = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, nil
}

// ListPageGrants retrieves granted page permissions across active roles
func (s *SQLStore) ListPageGrants(ctx context.Context, userID int64) ([]PageGrant, error) {
	query := `
		SELECT p.path, perm.name
		FROM user_roles ur
		JOIN role_permissions rp ON ur.role_id = rp.role_id
		JOIN pages p ON rp.page_id = p.id
		JOIN permissions perm ON rp.permission_id = perm.id
		WHERE ur.user_id = $1 AND ur.is_active = TRUE AND rp.granted = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list page grants: %w", err)
	}
	defer rows.Close()

	var grants []PageGrant
	for rows.Next() {
		var grant PageGrant
		if err := rows.Scan(&grant.Path, &grant.Permission); err != nil {
			return nil, fmt.Errorf("failed to scan page grant: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate page grants: %w", err)
	}

	return grants, nil
}

// ListTableGrants retrieves table permissions across active roles
func (s *SQLStore) ListTableGrants(ctx context.Context, userID int64) ([]TableGrant, error) {
	query := `
		SELECT dt.table_name, tp.can_view, tp.can_create, tp.can_edit, tp.can_delete, tp.can_export, tp.scope_filter
		FROM user_roles ur
		JOIN table_permissions tp ON ur.role_id = tp.role_id
		JOIN database_tables dt ON tp.table_id = dt.id
		WHERE ur.user_id = $1 AND ur.is_active = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list table grants: %w", err)
	}
	defer rows.Close()

	var grants []TableGrant
	for rows.Next() {
		var grant TableGrant
		var scope sql.NullString
		if err := rows.Scan(
			&grant.Table,
			&grant.View,
			&grant.Create,
			&grant.Edit,
			&grant.Delete,
			&grant.Export,
			&scope,
		); err != nil {
			return nil, fmt.Errorf("failed to scan table grant: %w", err)
		}
		grant.Scope = scope.String
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate table grants: %w", err)
	}

	return grants, nil
}
