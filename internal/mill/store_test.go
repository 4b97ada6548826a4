package mill_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/mill"
	"github.com/millerp/millerp/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB returns an owner pool and a pool for a plain role that is
// subject to row-level security.
func setupTestDB(t *testing.T) (ownerPool, rlsPool *database.Pool, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("millerp_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(connStr, "file://../../migrations"))

	ownerPool, err = database.Connect(ctx, connStr, 5)
	require.NoError(t, err)

	_, err = ownerPool.Exec(ctx, `
		CREATE ROLE app_user LOGIN PASSWORD 'app_pass';
		GRANT USAGE ON SCHEMA public TO app_user;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO app_user;
	`)
	require.NoError(t, err)

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	u.User = url.UserPassword("app_user", "app_pass")
	rlsPool, err = database.Connect(ctx, u.String(), 5)
	require.NoError(t, err)

	return ownerPool, rlsPool, func() {
		rlsPool.Close()
		ownerPool.Close()
		_ = container.Terminate(ctx)
	}
}

func TestStore_Mills(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ownerPool, _, cleanup := setupTestDB(t)
	defer cleanup()

	store := mill.NewStore(ownerPool)
	ctx := context.Background()

	created, err := store.Create(ctx, "Sri Lakshmi Rice Mill", "sri-lakshmi")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, mill.StatusActive, created.Status)

	_, err = store.Create(ctx, "Copycat", "sri-lakshmi")
	assert.ErrorIs(t, err, mill.ErrSlugTaken)

	_, err = store.Create(ctx, "Bad", "API")
	assert.ErrorIs(t, err, mill.ErrInvalidSlug)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sri-lakshmi", got.Slug)

	_, err = store.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, mill.ErrMillNotFound)

	suspended, err := store.SetStatus(ctx, created.ID, mill.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, mill.StatusSuspended, suspended.Status)

	mills, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, mills, 1)
}

func TestStaffStore_MillScoped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ownerPool, rlsPool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mills := mill.NewStore(ownerPool)
	millA, err := mills.Create(ctx, "Mill A", "mill-a")
	require.NoError(t, err)
	millB, err := mills.Create(ctx, "Mill B", "mill-b")
	require.NoError(t, err)

	staff := mill.NewStaffStore()
	grants := []auth.Grant{{ModuleSlug: "rice-sales-report", Actions: []string{"view", "edit"}}}

	var ravi *mill.Staff
	err = database.WithMillConnection(ctx, rlsPool, millA.ID, func(ctx context.Context, q database.Querier) error {
		var createErr error
		ravi, createErr = staff.Create(ctx, q, mill.NewStaff{
			Email:        "ravi@mill-a.in",
			DisplayName:  "Ravi",
			Role:         "mill-staff",
			PasswordHash: "x",
			Permissions:  grants,
		})
		return createErr
	})
	require.NoError(t, err)
	assert.Equal(t, millA.ID, ravi.MillID)
	assert.Equal(t, grants, ravi.Permissions)

	t.Run("DuplicateEmail", func(t *testing.T) {
		err := database.WithMillConnection(ctx, rlsPool, millA.ID, func(ctx context.Context, q database.Querier) error {
			_, err := staff.Create(ctx, q, mill.NewStaff{Email: "RAVI@mill-a.in", Role: "mill-staff", PasswordHash: "x"})
			return err
		})
		assert.ErrorIs(t, err, mill.ErrEmailDuplicate)
	})

	t.Run("OtherMillCannotSee", func(t *testing.T) {
		err := database.WithMillConnection(ctx, rlsPool, millB.ID, func(ctx context.Context, q database.Querier) error {
			list, err := staff.List(ctx, q)
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = staff.GetByID(ctx, q, ravi.ID)
			assert.ErrorIs(t, err, mill.ErrStaffNotFound)

			_, err = staff.SetPermissions(ctx, q, ravi.ID, nil)
			assert.ErrorIs(t, err, mill.ErrStaffNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("PermissionsAndDeactivate", func(t *testing.T) {
		err := database.WithMillConnection(ctx, rlsPool, millA.ID, func(ctx context.Context, q database.Querier) error {
			updated, err := staff.SetPermissions(ctx, q, ravi.ID, []auth.Grant{})
			require.NoError(t, err)
			assert.Empty(t, updated.Permissions)

			name := "Ravi Kumar"
			updated, err = staff.Update(ctx, q, ravi.ID, mill.StaffUpdate{DisplayName: &name})
			require.NoError(t, err)
			assert.Equal(t, "Ravi Kumar", updated.DisplayName)
			assert.Equal(t, "mill-staff", updated.Role)

			deactivated, err := staff.Deactivate(ctx, q, ravi.ID)
			require.NoError(t, err)
			assert.Equal(t, mill.StaffInactive, deactivated.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("DeactivatedSessionRefused", func(t *testing.T) {
		_, err := auth.NewStore(ownerPool).GetIdentity(ctx, ravi.ID)
		assert.ErrorIs(t, err, auth.ErrUserInactive)
	})
}

func TestStaffStore_MillScopedAsOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// The owner bypasses RLS, so isolation rests on the queries alone.
	ownerPool, _, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mills := mill.NewStore(ownerPool)
	millA, err := mills.Create(ctx, "Mill A", "mill-a")
	require.NoError(t, err)
	millB, err := mills.Create(ctx, "Mill B", "mill-b")
	require.NoError(t, err)

	_, err = ownerPool.Exec(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES ('root@millerp.in', 'x', 'super-admin')")
	require.NoError(t, err)

	staff := mill.NewStaffStore()
	grants := []auth.Grant{{ModuleSlug: "rice-sales-report", Actions: []string{"view"}}}

	var meena *mill.Staff
	err = database.WithMillConnection(ctx, ownerPool, millB.ID, func(ctx context.Context, q database.Querier) error {
		var createErr error
		meena, createErr = staff.Create(ctx, q, mill.NewStaff{
			Email:        "meena@mill-b.in",
			Role:         "mill-staff",
			PasswordHash: "x",
			Permissions:  grants,
		})
		return createErr
	})
	require.NoError(t, err)

	err = database.WithMillConnection(ctx, ownerPool, millA.ID, func(ctx context.Context, q database.Querier) error {
		list, err := staff.List(ctx, q)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = staff.GetByID(ctx, q, meena.ID)
		assert.ErrorIs(t, err, mill.ErrStaffNotFound)

		_, err = staff.SetPermissions(ctx, q, meena.ID, []auth.Grant{})
		assert.ErrorIs(t, err, mill.ErrStaffNotFound)

		_, err = staff.Deactivate(ctx, q, meena.ID)
		assert.ErrorIs(t, err, mill.ErrStaffNotFound)
		return nil
	})
	require.NoError(t, err)

	t.Run("NoMillSeesNothing", func(t *testing.T) {
		list, err := staff.List(ctx, ownerPool)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("OwnMillUnchanged", func(t *testing.T) {
		err := database.WithMillConnection(ctx, ownerPool, millB.ID, func(ctx context.Context, q database.Querier) error {
			got, err := staff.GetByID(ctx, q, meena.ID)
			require.NoError(t, err)
			assert.Equal(t, grants, got.Permissions)
			assert.Equal(t, mill.StaffActive, got.Status)

			list, err := staff.List(ctx, q)
			require.NoError(t, err)
			assert.Len(t, list, 1)
			return nil
		})
		require.NoError(t, err)
	})
}
