package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// Problem types written by the middleware.
const (
	ProblemUnauthenticated    = "unauthenticated"
	ProblemSessionUnavailable = "session_unavailable"
)

// Middleware enforces route requirements on chi routes.
type Middleware struct {
	Guard   *Guard
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Public lets every request through without touching the session store.
func (m Middleware) Public() func(http.Handler) http.Handler {
	return m.Enforce(Public())
}

// Authenticated requires any active session.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.Enforce(Authenticated())
}

// Require demands every listed permission.
func (m Middleware) Require(perms ...Permission) func(http.Handler) http.Handler {
	return m.Enforce(Require(perms...))
}

// Enforce authorizes each request against req. On allow the caller's access is
// attached to the request context; nested Enforce calls reuse it instead of
// resolving the session again.
func (m Middleware) Enforce(req RouteRequirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if req.Public {
				next.ServeHTTP(w, r)
				return
			}

			var decision Decision
			access, resolved := AccessFromContext(r.Context())
			if resolved {
				identity := access.Identity
				decision = m.Guard.Evaluate(&identity, req)
			} else {
				var err error
				decision, err = m.Guard.Authorize(r.Context(), r, req)
				if err != nil {
					m.logger().Error("rbac authorize", slog.Any("error", err), slog.String("path", r.URL.Path))
					m.Metrics.ObserveAccess("error", ProblemSessionUnavailable)
					httpx.TypedProblem(w, http.StatusServiceUnavailable, ProblemSessionUnavailable,
						"Service Unavailable", "session store unavailable")
					return
				}
			}
			m.Metrics.ObserveAccess(decision.Outcome.String(), decision.Reason)

			switch decision.Outcome {
			case Allow:
				if !resolved {
					r = r.WithContext(ContextWithAccess(r.Context(), Access{
						Identity:    *decision.Identity,
						Permissions: decision.Permissions,
					}))
				}
				next.ServeHTTP(w, r)
			case RejectUnauthenticated:
				httpx.TypedProblem(w, http.StatusUnauthorized, ProblemUnauthenticated,
					"Unauthorized", "authentication required")
			default:
				detail := "account is deactivated"
				if decision.Reason == ReasonInsufficientPermissions {
					detail = "missing permissions: " + joinPermissions(decision.Missing)
				}
				httpx.TypedProblem(w, http.StatusForbidden, decision.Reason, "Forbidden", detail)
			}
		})
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func joinPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}
