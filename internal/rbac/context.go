package rbac

import "context"

type accessContextKey struct{}

// Access is the authorization result threaded to handlers.
type Access struct {
	Identity    Identity
	Permissions PermissionSet
}

// Can reports whether the caller holds p.
func (a Access) Can(p Permission) bool {
	return a.Permissions.Has(p)
}

// ContextWithAccess stores the resolved access in ctx.
func ContextWithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext returns the access attached by the middleware.
func AccessFromContext(ctx context.Context) (Access, bool) {
	access, ok := ctx.Value(accessContextKey{}).(Access)
	return access, ok
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	access, ok := AccessFromContext(ctx)
	if !ok {
		return Identity{}, false
	}
	return access.Identity, true
}
