package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// PermissionsHandler exposes the role table and the caller's own grants.
type PermissionsHandler struct {
	logger  *slog.Logger
	catalog *Catalog
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, catalog *Catalog, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, catalog: catalog, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Authenticated()).Get("/me", h.me)
	r.With(h.rbac.Require(ManageUsers)).Get("/", h.list)
}

type myPermissionsResponse struct {
	UserID      string       `json:"userId"`
	Email       string       `json:"email"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

type roleGrant struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

type catalogResponse struct {
	Roles       []roleGrant  `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	access, ok := AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, myPermissionsResponse{
		UserID:      access.Identity.ID,
		Email:       access.Identity.Email,
		Role:        access.Identity.Role,
		Permissions: access.Permissions.Slice(),
	})
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	roles := h.catalog.Roles()
	resp := catalogResponse{Roles: make([]roleGrant, 0, len(roles)), Permissions: AllPermissions()}
	for _, role := range roles {
		resp.Roles = append(resp.Roles, roleGrant{Role: role, Permissions: h.catalog.PermissionsFor(role).Slice()})
	}
	h.logger.Debug("permission catalog listed", slog.Int("roles", len(roles)))
	httpx.JSON(w, http.StatusOK, resp)
}
