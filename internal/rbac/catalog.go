package rbac

import "sort"

// PermissionSet is an immutable set of permissions.
type PermissionSet struct {
	items map[Permission]struct{}
}

// NewPermissionSet builds a set from perms, dropping duplicates.
func NewPermissionSet(perms ...Permission) PermissionSet {
	items := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		items[p] = struct{}{}
	}
	return PermissionSet{items: items}
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.items[p]
	return ok
}

// Missing returns the required permissions absent from s, in input order.
func (s PermissionSet) Missing(required ...Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// HasAll reports whether every required permission is present.
func (s PermissionSet) HasAll(required ...Permission) bool {
	return len(s.Missing(required...)) == 0
}

// Len returns the number of permissions.
func (s PermissionSet) Len() int {
	return len(s.items)
}

// Slice returns the permissions sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Catalog maps roles to their permissions. It is built once at startup and
// never mutated afterwards, so it is safe for concurrent use.
type Catalog struct {
	grants map[Role]PermissionSet
}

// NewCatalog copies grants into a new Catalog.
func NewCatalog(grants map[Role][]Permission) *Catalog {
	copied := make(map[Role]PermissionSet, len(grants))
	for role, perms := range grants {
		copied[role] = NewPermissionSet(perms...)
	}
	return &Catalog{grants: copied}
}

// DefaultCatalog returns the deployment role table.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[Role][]Permission{
		RoleAgent: {
			CreateCar,
			UpdateCar,
			DeleteCar,
			ManageReservations,
			UpdateReservationStatus,
		},
		RoleAdmin: {
			ManageUsers,
			ManageComments,
			DeleteAnyComment,
			ManageReservations,
			UpdateReservationStatus,
			UsersDelete,
			UsersView,
			AdminUserCreate,
			AdminUserActivate,
			AdminUserDeactivate,
			UpdateUserRole,
		},
	})
}

// PermissionsFor returns the permissions granted to role. Unknown roles get an
// empty set.
func (c *Catalog) PermissionsFor(role Role) PermissionSet {
	if c == nil {
		return PermissionSet{}
	}
	return c.grants[role]
}

// Roles returns the configured roles sorted by name.
func (c *Catalog) Roles() []Role {
	if c == nil {
		return nil
	}
	roles := make([]Role, 0, len(c.grants))
	for r := range c.grants {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
