//go:build integration

package rbac_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/warrant/pkg/rbac"
	"github.com/platinummonkey/warrant/pkg/sqlfilter"
)

// setupPostgresTestDB starts a PostgreSQL container with the role store schema applied
func setupPostgresTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("warrant_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, rbac.RunMigrations(ctx, db), "Failed to run migrations")
	// Running twice must be a no-op
	require.NoError(t, rbac.RunMigrations(ctx, db))

	cleanup := func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgresContainer.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func seedRoleStore(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO roles (id, name) VALUES (1, 'Auditor'), (2, 'Risk Owner'), (3, 'Retired');
		INSERT INTO users (id, organization_id, department_id, primary_role_id) VALUES
			(100, 10, 7, 1),
			(101, 10, NULL, 2);
		INSERT INTO user_roles (user_id, role_id, is_active) VALUES
			(100, 1, TRUE), (100, 2, TRUE), (100, 3, FALSE),
			(101, 2, TRUE);
		INSERT INTO pages (id, path) VALUES (1, '/findings'), (2, '/risks');
		INSERT INTO permissions (id, name) VALUES (1, 'view'), (2, 'edit'), (3, 'admin');
		INSERT INTO role_permissions (role_id, page_id, permission_id, granted) VALUES
			(1, 1, 1, TRUE),
			(2, 2, 3, TRUE),
			(3, 1, 2, TRUE),
			(1, 2, 2, FALSE);
		INSERT INTO database_tables (id, table_name) VALUES (1, 'findings'), (2, 'risks');
		INSERT INTO table_permissions (role_id, table_id, can_view, can_create, can_edit, can_delete, can_export, scope_filter) VALUES
			(1, 1, TRUE, FALSE, FALSE, FALSE, TRUE, 'organization'),
			(2, 1, FALSE, TRUE, FALSE, FALSE, FALSE, 'own'),
			(2, 2, TRUE, TRUE, TRUE, FALSE, FALSE, 'department'),
			(3, 2, TRUE, TRUE, TRUE, TRUE, TRUE, 'all');

		CREATE TABLE risks (
			id BIGINT PRIMARY KEY,
			organization_id BIGINT NOT NULL,
			department_id BIGINT,
			created_by BIGINT,
			assigned_to BIGINT
		);
		INSERT INTO risks (id, organization_id, department_id, created_by, assigned_to) VALUES
			(1, 10, 7, 100, NULL),
			(2, 10, 8, 55, 101),
			(3, 11, 7, 55, NULL);
	`)
	require.NoError(t, err)
}

func TestSQLStoreIntegration(t *testing.T) {
	db, cleanup := setupPostgresTestDB(t)
	defer cleanup()
	seedRoleStore(t, db)

	ctx := context.Background()
	engine, err := rbac.NewEngine(rbac.NewSQLStore(db), rbac.EngineConfig{})
	require.NoError(t, err)
	authz := engine.Authorizer

	t.Run("active roles only", func(t *testing.T) {
		perms, err := authz.Permissions(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, perms)
		assert.Equal(t, []string{"Auditor", "Risk Owner"}, perms.Roles())
	})

	t.Run("page grants", func(t *testing.T) {
		allowed, err := authz.HasPagePermission(ctx, 100, "/findings", "view")
		require.NoError(t, err)
		assert.True(t, allowed)

		// granted only through an inactive role
		allowed, err = authz.HasPagePermission(ctx, 100, "/findings", "edit")
		require.NoError(t, err)
		assert.False(t, allowed)

		// admin on /risks implies edit even though the explicit edit row is not granted
		allowed, err = authz.HasPagePermission(ctx, 100, "/risks", "approve")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("table grants are unioned", func(t *testing.T) {
		view, err := authz.HasTablePermission(ctx, 100, "findings", rbac.CapabilityView)
		require.NoError(t, err)
		create, err := authz.HasTablePermission(ctx, 100, "findings", rbac.CapabilityCreate)
		require.NoError(t, err)
		del, err := authz.HasTablePermission(ctx, 100, "risks", rbac.CapabilityDelete)
		require.NoError(t, err)

		assert.True(t, view)
		assert.True(t, create)
		assert.False(t, del)

		scope, err := authz.DataScope(ctx, 100, "findings")
		require.NoError(t, err)
		assert.Equal(t, rbac.ScopeOrganization, scope)
	})

	t.Run("unknown user", func(t *testing.T) {
		perms, err := authz.Permissions(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, perms)
	})

	t.Run("rendered scope filter restricts rows", func(t *testing.T) {
		countRows := func(userID int64) int {
			filter, err := authz.ScopeFilter(ctx, userID, "risks")
			require.NoError(t, err)

			cond, args := sqlfilter.Where("", nil, filter)
			query := "SELECT COUNT(*) FROM risks WHERE " + cond
			var n int
			require.NoError(t, db.QueryRowContext(ctx, query, args...).Scan(&n))
			return n
		}

		// department 7 of organization 10
		assert.Equal(t, 1, countRows(100))
		// no department, degrades to organization 10
		assert.Equal(t, 2, countRows(101))
	})
}
