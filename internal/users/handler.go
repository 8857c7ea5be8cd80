package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

const (
	defaultPageSize   = 20
	profileImageField = "profileImage"
)

// Handler exposes account endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	intake      *media.Intake
	compensator *media.Compensator
	rbac        rbac.Middleware
	validator   *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, intake *media.Intake, compensator *media.Compensator, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		intake:      intake,
		compensator: compensator,
		rbac:        rbac,
		validator:   shared.NewValidator(),
	}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated())
		r.Get("/profile/me", h.me)
		r.Patch("/profile/me", h.updateMe)
		r.Patch("/profile/me/image", h.updateMyImage)
		r.Delete("/profile/me/image", h.deleteMyImage)
		r.Patch("/profile/password", h.changePassword)
		r.Delete("/me", h.deleteMe)
	})

	r.With(h.rbac.Require(rbac.UsersView)).Get("/", h.list)
	r.With(h.rbac.Require(rbac.UsersView)).Get("/{id}", h.get)
	r.With(h.rbac.Require(rbac.UsersUpdate)).Patch("/{id}", h.update)
	r.With(h.rbac.Require(rbac.UsersDelete)).Delete("/{id}", h.delete)
	r.With(h.rbac.Require(rbac.AdminUserCreate)).Post("/admin", h.createAdmin)
	r.With(h.rbac.Require(rbac.AdminUserActivate)).Patch("/activate/{id}", h.activate)
	r.With(h.rbac.Require(rbac.AdminUserDeactivate)).Patch("/deactivate/{id}", h.deactivate)
	r.With(h.rbac.Require(rbac.UpdateUserRole)).Patch("/{id}/role", h.changeRole)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	user, err := h.service.Get(r.Context(), identity.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	h.updateProfile(w, r, identity.ID)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.updateProfile(w, r, id)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var input ProfileInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateMyImage(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	h.intake.Limit(w, r)
	uploaded, err := h.intake.Receive(r, profileImageField)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var user User
	err = h.compensator.Run(r.Context(), uploaded, func(ctx context.Context) error {
		if len(uploaded) != 1 {
			return fmt.Errorf("%w: exactly one %s file is required", httpx.ErrValidation, profileImageField)
		}
		user, err = h.service.ReplaceProfileImage(ctx, identity.ID, uploaded[0])
		return err
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteMyImage(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	user, err := h.service.RemoveProfileImage(r.Context(), identity.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	var input PasswordInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), identity.ID, input); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (h *Handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), identity, identity.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := userID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

func (h *Handler) createAdmin(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	var input AdminInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.CreateAdmin(r.Context(), identity, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := userID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.SetActive(r.Context(), identity, id, active)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := userID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var input RoleInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.ChangeRole(r.Context(), identity, id, input.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationSummary(err))
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("user request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func userID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", fmt.Errorf("%w: user id must be a UUID", httpx.ErrValidation)
	}
	return id.String(), nil
}

func parseListFilter(q url.Values) (ListFilter, error) {
	filter := ListFilter{
		Email:      strings.TrimSpace(q.Get("email")),
		Name:       strings.TrimSpace(q.Get("name")),
		Pagination: shared.PaginationFromQuery(q, defaultPageSize),
	}
	if role := rbac.Role(q.Get("role")); role != "" {
		if !role.Valid() {
			return filter, fmt.Errorf("%w: role must be admin or agent", httpx.ErrValidation)
		}
		filter.Role = role
	}
	var err error
	if filter.CreatedFrom, err = queryTime(q, "createdFrom"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = queryTime(q, "createdTo"); err != nil {
		return filter, err
	}
	return filter, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", httpx.ErrValidation, key)
}
