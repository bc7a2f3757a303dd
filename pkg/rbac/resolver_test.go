package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles snapshot", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, int64Ptr(20))
		store.grantRole(1, "Risk Manager")
		store.grantRole(1, "Auditor")
		store.grantPage(1, "/risks", "view")
		store.grantPage(1, "/risks", "edit")
		store.grantPage(1, "/risks", "view")
		store.grantTable(1, TableGrant{Table: "risks", View: true, Scope: "department"})

		perms, err := NewResolver(store, 0).Resolve(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, perms)

		assert.Equal(t, int64(1), perms.UserID())
		assert.Equal(t, int64(10), perms.OrganizationID())
		dept, ok := perms.DepartmentID()
		assert.True(t, ok)
		assert.Equal(t, int64(20), dept)
		assert.Equal(t, []string{"Auditor", "Risk Manager"}, perms.Roles())
		assert.Equal(t, []string{"edit", "view"}, perms.PagePermissions("/risks"))

		tp, ok := perms.TablePermission("risks")
		require.True(t, ok)
		assert.True(t, tp.View)
		assert.Equal(t, ScopeDepartment, tp.Scope)
	})

	t.Run("unknown user resolves to nil", func(t *testing.T) {
		perms, err := NewResolver(newMemStore(), 0).Resolve(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, perms)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		store := newMemStore()
		store.addUser(1, 10, nil)
		store.setErr(cause)

		perms, err := NewResolver(store, 0).Resolve(ctx, 1)
		assert.Nil(t, perms)
		assert.ErrorIs(t, err, ErrRoleStoreUnavailable)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("unknown scope falls back to own", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, nil)
		store.grantRole(1, "Viewer")
		store.grantTable(1, TableGrant{Table: "controls", View: true, Scope: "planet"})

		perms, err := NewResolver(store, 0).Resolve(ctx, 1)
		require.NoError(t, err)

		tp, ok := perms.TablePermission("controls")
		require.True(t, ok)
		assert.Equal(t, ScopeOwn, tp.Scope)
	})

	t.Run("most permissive scope wins across roles", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, int64Ptr(3))
		store.grantRole(1, "A")
		store.grantRole(1, "B")
		store.grantTable(1, TableGrant{Table: "findings", View: true, Scope: "own"})
		store.grantTable(1, TableGrant{Table: "findings", Edit: true, Scope: "organization"})
		store.grantTable(1, TableGrant{Table: "findings", Scope: "department"})

		perms, err := NewResolver(store, 0).Resolve(ctx, 1)
		require.NoError(t, err)

		tp, _ := perms.TablePermission("findings")
		assert.Equal(t, TablePermission{View: true, Edit: true, Scope: ScopeOrganization}, tp)
	})
}

func TestUserPermissions_MarshalJSON(t *testing.T) {
	store := newMemStore()
	store.addUser(7, 1, nil)
	store.grantRole(7, "Auditor")
	store.grantPage(7, "/findings", "view")
	store.grantTable(7, TableGrant{Table: "findings", View: true, Export: true, Scope: "organization"})

	perms, err := NewResolver(store, 0).Resolve(context.Background(), 7)
	require.NoError(t, err)

	data, err := json.Marshal(perms)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"user_id": 7,
		"organization_id": 1,
		"roles": ["Auditor"],
		"page_permissions": {"/findings": ["view"]},
		"table_permissions": {
			"findings": {
				"can_view": true,
				"can_create": false,
				"can_edit": false,
				"can_delete": false,
				"can_export": true,
				"scope_filter": "organization"
			}
		}
	}`, string(data))
}

// blockingStore holds every read until the context is done
type blockingStore struct {
	*memStore
}

func (b blockingStore) GetUser(ctx context.Context, _ int64) (*UserRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolver_Timeout(t *testing.T) {
	ctx := context.Background()
	store := blockingStore{memStore: newMemStore()}

	t.Run("slow store read fails the resolution", func(t *testing.T) {
		start := time.Now()
		perms, err := NewResolver(store, 20*time.Millisecond).Resolve(ctx, 1)

		assert.Nil(t, perms)
		assert.ErrorIs(t, err, ErrRoleStoreUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("decision is denied and nothing is cached", func(t *testing.T) {
		engine, err := NewEngine(store, EngineConfig{ResolveTimeout: 20 * time.Millisecond})
		require.NoError(t, err)

		allowed, err := engine.Authorizer.HasPagePermission(ctx, 1, "/risks", "view")
		assert.False(t, allowed)
		assert.ErrorIs(t, err, ErrRoleStoreUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, engine.Cache.Len())
	})
}
