package rbac

import (
	"context"
	"net/http"
)

// Permission is an atomic capability tag. Possession is binary per request.
type Permission string

// Permissions known to the dealership backend.
const (
	ManageUsers             Permission = "MANAGE_USERS"
	ManageCars              Permission = "MANAGE_CARS"
	CreateCar               Permission = "CREATE_CAR"
	UpdateCar               Permission = "UPDATE_CAR"
	DeleteCar               Permission = "DELETE_CAR"
	ManageComments          Permission = "MANAGE_COMMENTS"
	DeleteAnyComment        Permission = "DELETE_ANY_COMMENT"
	ManageReservations      Permission = "MANAGE_RESERVATIONS"
	UpdateReservationStatus Permission = "UPDATE_RESERVATION_STATUS"
	UsersUpdate             Permission = "USERS_UPDATE"
	UsersDelete             Permission = "USERS_DELETE"
	UsersView               Permission = "USERS_VIEW"
	AdminUserCreate         Permission = "ADMIN_USER_CREATE"
	AdminUserActivate       Permission = "ADMIN_USER_ACTIVATE"
	AdminUserDeactivate     Permission = "ADMIN_USER_DEACTIVATE"
	UpdateUserRole          Permission = "UPDATE_USER_ROLE"
)

// AllPermissions lists the closed permission set.
func AllPermissions() []Permission {
	return []Permission{
		ManageUsers, ManageCars, CreateCar, UpdateCar, DeleteCar,
		ManageComments, DeleteAnyComment, ManageReservations, UpdateReservationStatus,
		UsersUpdate, UsersDelete, UsersView, AdminUserCreate, AdminUserActivate,
		AdminUserDeactivate, UpdateUserRole,
	}
}

// Role groups permissions.
type Role string

// Roles assignable to accounts.
const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAgent
}

// Identity is the authenticated principal resolved for one request.
type Identity struct {
	ID       string
	Email    string
	Role     Role
	IsActive bool
}

// SessionResolver turns request credentials into an Identity. It returns
// (nil, nil) when the request carries no valid session.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// RouteRequirement is the authorization metadata attached to an endpoint.
// An empty Permissions list on a non-public route means "authenticated only".
type RouteRequirement struct {
	Public      bool
	Permissions []Permission
}

// Public marks a route that skips session resolution entirely.
func Public() RouteRequirement {
	return RouteRequirement{Public: true}
}

// Authenticated requires a session but no specific permission.
func Authenticated() RouteRequirement {
	return RouteRequirement{}
}

// Require demands every listed permission.
func Require(perms ...Permission) RouteRequirement {
	return RouteRequirement{Permissions: perms}
}

// Outcome is the result of an authorization decision.
type Outcome int

// Decision outcomes.
const (
	Allow Outcome = iota
	RejectUnauthenticated
	RejectForbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RejectUnauthenticated:
		return "unauthenticated"
	case RejectForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Reasons attached to forbidden decisions.
const (
	ReasonAccountDeactivated      = "account_deactivated"
	ReasonInsufficientPermissions = "insufficient_permissions"
)

// Decision carries the outcome and, on Allow, the resolved principal.
type Decision struct {
	Outcome     Outcome
	Reason      string
	Identity    *Identity
	Permissions PermissionSet
	Missing     []Permission
}
