package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

func newTestChecker(t *testing.T) (*Checker, *storage.PermissionRepository) {
	t.Helper()

	db, err := storage.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	permissions := storage.NewPermissionRepository(db)
	return NewChecker(permissions), permissions
}

func ptr(s string) *string { return &s }

func createCalendar(t *testing.T, permissions *storage.PermissionRepository, cal *models.Calendar) *models.Calendar {
	t.Helper()
	require.NoError(t, permissions.CreateCalendar(context.Background(), cal))
	return cal
}

func TestAccessOwnerAndStrangers(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:        "Worship team",
		OwnerUserID: ptr("owner"),
	})

	ok, err := checker.CanAccessCalendar(ctx, &models.User{ID: "owner", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.CanAccessCalendar(ctx, &models.User{ID: "stranger", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.False(t, ok)

	// Missing identity always denies.
	ok, err = checker.CanAccessCalendar(ctx, nil, cal)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessSupersetRoles(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:        "Private calendar",
		OwnerUserID: ptr("owner"),
	})

	for _, role := range []string{models.RoleSuperAdmin, models.RoleNetworkAdmin} {
		ok, err := checker.CanAccessCalendar(ctx, &models.User{ID: "admin", Role: role}, cal)
		require.NoError(t, err)
		assert.True(t, ok, "role %s bypasses calendar checks", role)

		ok, err = checker.CanManageCalendar(ctx, &models.User{ID: "admin", Role: role}, cal)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAccessChurchAdmin(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:     "Church schedule",
		ChurchID: ptr("church-1"),
	})

	admin := &models.User{ID: "a", Role: models.RoleChurchAdmin, ChurchID: "church-1"}
	ok, err := checker.CanAccessCalendar(ctx, admin, cal)
	require.NoError(t, err)
	assert.True(t, ok)

	otherAdmin := &models.User{ID: "b", Role: models.RoleChurchAdmin, ChurchID: "church-2"}
	ok, err = checker.CanAccessCalendar(ctx, otherAdmin, cal)
	require.NoError(t, err)
	assert.False(t, ok)

	member := &models.User{ID: "c", Role: models.RoleMember, ChurchID: "church-1"}
	ok, err = checker.CanAccessCalendar(ctx, member, cal)
	require.NoError(t, err)
	assert.False(t, ok, "church membership alone does not grant access")
}

func TestAccessGlobalAndPublicCalendars(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	global := createCalendar(t, permissions, &models.Calendar{Name: "Network events"})
	public := createCalendar(t, permissions, &models.Calendar{
		Name:        "Open rehearsals",
		OwnerUserID: ptr("owner"),
		IsPublic:    true,
	})

	member := &models.User{ID: "anyone", Role: models.RoleMember}

	ok, err := checker.CanAccessCalendar(ctx, member, global)
	require.NoError(t, err)
	assert.True(t, ok, "ownerless calendars are global")

	ok, err = checker.CanAccessCalendar(ctx, member, public)
	require.NoError(t, err)
	assert.True(t, ok)

	// Readable is not manageable.
	ok, err = checker.CanManageCalendar(ctx, member, public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessGrants(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:        "Staff calendar",
		OwnerUserID: ptr("owner"),
	})

	require.NoError(t, permissions.CreatePermission(ctx, &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     ptr("reader"),
		Level:      models.PermissionRead,
		GrantedBy:  "owner",
	}))
	require.NoError(t, permissions.CreatePermission(ctx, &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     ptr("editor"),
		Level:      models.PermissionWrite,
		GrantedBy:  "owner",
	}))

	ok, err := checker.CanAccessCalendar(ctx, &models.User{ID: "reader", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.CanManageCalendar(ctx, &models.User{ID: "reader", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.False(t, ok, "read grants do not allow managing")

	ok, err = checker.CanManageCalendar(ctx, &models.User{ID: "editor", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessRoleAndChurchGrants(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:        "Leaders calendar",
		OwnerUserID: ptr("owner"),
	})

	require.NoError(t, permissions.CreatePermission(ctx, &models.CalendarPermission{
		CalendarID: cal.ID,
		Role:       ptr(models.RoleChurchAdmin),
		Level:      models.PermissionRead,
		GrantedBy:  "owner",
	}))
	require.NoError(t, permissions.CreatePermission(ctx, &models.CalendarPermission{
		CalendarID: cal.ID,
		ChurchID:   ptr("church-1"),
		Level:      models.PermissionRead,
		GrantedBy:  "owner",
	}))

	ok, err := checker.CanAccessCalendar(ctx, &models.User{ID: "x", Role: models.RoleChurchAdmin, ChurchID: "other"}, cal)
	require.NoError(t, err)
	assert.True(t, ok, "role grant matches")

	ok, err = checker.CanAccessCalendar(ctx, &models.User{ID: "y", Role: models.RoleMember, ChurchID: "church-1"}, cal)
	require.NoError(t, err)
	assert.True(t, ok, "church grant matches")

	ok, err = checker.CanAccessCalendar(ctx, &models.User{ID: "z", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.False(t, ok, "a church grant never matches an empty church")
}

func TestAccessExpiredGrant(t *testing.T) {
	checker, permissions := newTestChecker(t)
	ctx := context.Background()

	cal := createCalendar(t, permissions, &models.Calendar{
		Name:        "Seasonal calendar",
		OwnerUserID: ptr("owner"),
	})

	expired := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, permissions.CreatePermission(ctx, &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     ptr("reader"),
		Level:      models.PermissionRead,
		GrantedBy:  "owner",
		ExpiresAt:  &expired,
	}))

	ok, err := checker.CanAccessCalendar(ctx, &models.User{ID: "reader", Role: models.RoleMember}, cal)
	require.NoError(t, err)
	assert.False(t, ok, "expired grants behave as absent")
}
