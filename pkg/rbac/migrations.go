package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a role store schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the role store schema. The statements are kept
// portable between PostgreSQL and SQLite so development tenants can run on either.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGINT PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGINT PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					department_id BIGINT,
					primary_role_id BIGINT REFERENCES roles(id) ON DELETE SET NULL
				);

				CREATE TABLE IF NOT EXISTS user_roles (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create page permission tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS pages (
					id BIGINT PRIMARY KEY,
					path VARCHAR(255) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGINT PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					page_id BIGINT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted BOOLEAN NOT NULL DEFAULT TRUE,
					PRIMARY KEY (role_id, page_id, permission_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create table permission tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS database_tables (
					id BIGINT PRIMARY KEY,
					table_name VARCHAR(255) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS table_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					table_id BIGINT NOT NULL REFERENCES database_tables(id) ON DELETE CASCADE,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_create BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					can_export BOOLEAN NOT NULL DEFAULT FALSE,
					scope_filter VARCHAR(50) NOT NULL DEFAULT 'own',
					PRIMARY KEY (role_id, table_id)
				);
			`,
		},
	}
}

// RunMigrations executes all pending role store migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
