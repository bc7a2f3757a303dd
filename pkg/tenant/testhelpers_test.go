package tenant

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// sqliteTenant creates a migrated and seeded SQLite role store and returns its config
func sqliteTenant(t *testing.T, id string) Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), id+".db")
	db, err := sql.Open(DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, rbac.RunMigrations(context.Background(), db))

	_, err = db.Exec(`
		INSERT INTO roles (id, name) VALUES (1, 'Auditor'), (2, 'Super Admin');
		INSERT INTO users (id, organization_id, department_id, primary_role_id) VALUES
			(100, 10, 7, 1),
			(200, 10, NULL, 2);
		INSERT INTO user_roles (user_id, role_id, is_active) VALUES (100, 1, TRUE), (200, 2, TRUE);
		INSERT INTO pages (id, path) VALUES (1, '/findings');
		INSERT INTO permissions (id, name) VALUES (1, 'view');
		INSERT INTO role_permissions (role_id, page_id, permission_id, granted) VALUES (1, 1, 1, TRUE);
		INSERT INTO database_tables (id, table_name) VALUES (1, 'findings');
		INSERT INTO table_permissions (role_id, table_id, can_view, scope_filter) VALUES (1, 1, TRUE, 'department');
	`)
	require.NoError(t, err)

	return Config{ID: id, Driver: DriverSQLite, DSN: path}
}
