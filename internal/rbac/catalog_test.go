package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogMatchesRoleTable(t *testing.T) {
	catalog := DefaultCatalog()

	assert.Equal(t, []Permission{
		CreateCar, DeleteCar, ManageReservations, UpdateCar, UpdateReservationStatus,
	}, catalog.PermissionsFor(RoleAgent).Slice())

	admin := catalog.PermissionsFor(RoleAdmin)
	assert.Equal(t, 11, admin.Len())
	for _, p := range []Permission{
		ManageUsers, ManageComments, DeleteAnyComment, ManageReservations, UpdateReservationStatus,
		UsersDelete, UsersView, AdminUserCreate, AdminUserActivate, AdminUserDeactivate, UpdateUserRole,
	} {
		assert.True(t, admin.Has(p), "admin should hold %s", p)
	}
	assert.False(t, admin.Has(CreateCar))
	assert.False(t, admin.Has(ManageCars))
	assert.False(t, admin.Has(UsersUpdate))
}

func TestCatalogIsStableAcrossCalls(t *testing.T) {
	catalog := DefaultCatalog()
	first := catalog.PermissionsFor(RoleAgent).Slice()
	first[0] = ManageUsers

	assert.False(t, catalog.PermissionsFor(RoleAgent).Has(ManageUsers))
	assert.Equal(t, catalog.PermissionsFor(RoleAdmin).Slice(), catalog.PermissionsFor(RoleAdmin).Slice())
}

func TestCatalogCopiesInput(t *testing.T) {
	grants := map[Role][]Permission{RoleAgent: {CreateCar}}
	catalog := NewCatalog(grants)
	grants[RoleAgent][0] = ManageUsers
	grants[RoleAdmin] = []Permission{ManageUsers}

	assert.True(t, catalog.PermissionsFor(RoleAgent).Has(CreateCar))
	assert.False(t, catalog.PermissionsFor(RoleAgent).Has(ManageUsers))
	assert.Equal(t, 0, catalog.PermissionsFor(RoleAdmin).Len())
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	set := DefaultCatalog().PermissionsFor(Role("superuser"))
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.HasAll(CreateCar))
	assert.True(t, set.HasAll())

	var nilCatalog *Catalog
	assert.Equal(t, 0, nilCatalog.PermissionsFor(RoleAdmin).Len())
}

func TestPermissionSetMissingKeepsOrder(t *testing.T) {
	set := NewPermissionSet(CreateCar, CreateCar, "", UpdateCar)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, []Permission{DeleteCar, ManageUsers}, set.Missing(DeleteCar, CreateCar, ManageUsers))
	assert.Equal(t, []Role{RoleAdmin, RoleAgent}, DefaultCatalog().Roles())
}
