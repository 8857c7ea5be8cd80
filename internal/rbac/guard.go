package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Guard decides whether a request may proceed.
type Guard struct {
	resolver SessionResolver
	catalog  *Catalog
}

// NewGuard wires a Guard.
func NewGuard(resolver SessionResolver, catalog *Catalog) *Guard {
	return &Guard{resolver: resolver, catalog: catalog}
}

// Authorize evaluates req for r. Public routes never consult the resolver.
// A resolver failure is returned as an error, never as a forbidden decision.
func (g *Guard) Authorize(ctx context.Context, r *http.Request, req RouteRequirement) (Decision, error) {
	if req.Public {
		return Decision{Outcome: Allow}, nil
	}
	if g == nil || g.resolver == nil {
		return Decision{}, errors.New("rbac: guard not configured")
	}

	identity, err := g.resolver.Resolve(ctx, r)
	if err != nil {
		return Decision{}, fmt.Errorf("rbac: resolve session: %w", err)
	}

	return g.Evaluate(identity, req), nil
}

// Evaluate applies the activity and permission checks to an already resolved
// identity. It never consults the resolver.
func (g *Guard) Evaluate(identity *Identity, req RouteRequirement) Decision {
	if req.Public {
		return Decision{Outcome: Allow}
	}
	if identity == nil {
		return Decision{Outcome: RejectUnauthenticated}
	}
	if !identity.IsActive {
		return Decision{Outcome: RejectForbidden, Reason: ReasonAccountDeactivated, Identity: identity}
	}
	var catalog *Catalog
	if g != nil {
		catalog = g.catalog
	}
	granted := catalog.PermissionsFor(identity.Role)
	if missing := granted.Missing(req.Permissions...); len(missing) > 0 {
		return Decision{
			Outcome:  RejectForbidden,
			Reason:   ReasonInsufficientPermissions,
			Identity: identity,
			Missing:  missing,
		}
	}
	return Decision{Outcome: Allow, Identity: identity, Permissions: granted}
}
