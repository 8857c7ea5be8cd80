package comments

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

// Handler exposes comment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: shared.NewValidator()}
}

// MountRoutes registers comment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Public()).Post("/", h.create)
	r.With(h.rbac.Public()).Get("/car/{carId}", h.listByCar)
	r.With(h.rbac.Require(rbac.ManageComments, rbac.DeleteAnyComment)).Delete("/{id}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.respondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(input); err != nil {
		h.respondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationSummary(err)))
		return
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listByCar(w http.ResponseWriter, r *http.Request) {
	carID, err := uuid.Parse(chi.URLParam(r, "carId"))
	if err != nil {
		h.respondError(w, fmt.Errorf("%w: car id must be a UUID", httpx.ErrValidation))
		return
	}
	items, err := h.service.ListByCar(r.Context(), carID.String())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, fmt.Errorf("%w: comment id must be a UUID", httpx.ErrValidation))
		return
	}
	if err := h.service.Delete(r.Context(), id.String()); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("comment request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
