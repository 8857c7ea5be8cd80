package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

const defaultPageSize = 10

// IdempotencyGuard deduplicates retried public bookings.
type IdempotencyGuard interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// Handler exposes reservation endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	rbac        rbac.Middleware
	validator   *validator.Validate
	idempotency IdempotencyGuard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: shared.NewValidator()}
}

// WithIdempotency makes POST /{id} honour the Idempotency-Key header.
func (h *Handler) WithIdempotency(guard IdempotencyGuard) *Handler {
	h.idempotency = guard
	return h
}

// MountRoutes registers reservation routes. POST /{id} books the car with that id.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Public()).Post("/{id}", h.create)
	r.With(h.rbac.Require(rbac.ManageReservations)).Get("/", h.list)
	r.With(h.rbac.Require(rbac.ManageReservations)).Get("/{id}", h.get)
	r.With(h.rbac.Require(rbac.ManageReservations)).Patch("/{id}", h.update)
	r.With(h.rbac.Require(rbac.ManageReservations)).Delete("/{id}", h.delete)
	r.With(h.rbac.Require(rbac.ManageReservations, rbac.UpdateReservationStatus)).Patch("/{id}/status", h.setStatus)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r, "car")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var input CreateInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), "reservations", key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				err = fmt.Errorf("%w: reservation already submitted", httpx.ErrDuplicate)
			}
			h.respondError(w, err)
			return
		}
	}
	created, err := h.service.Create(r.Context(), carID, input)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if releaseErr := h.idempotency.Release(context.WithoutCancel(r.Context()), "reservations", key); releaseErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", releaseErr))
			}
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
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
	id, err := pathID(r, "reservation")
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reservation")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var input UpdateInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reservation")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var input StatusInput
	if err := h.decode(r, &input); err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.service.SetStatus(r.Context(), id, input.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reservation")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
		h.logger.Error("reservation request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, what string) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", fmt.Errorf("%w: %s id must be a UUID", httpx.ErrValidation, what)
	}
	return id.String(), nil
}

func parseListFilter(q url.Values) (ListFilter, error) {
	filter := ListFilter{
		ClientName:  strings.TrimSpace(q.Get("clientName")),
		ClientEmail: strings.TrimSpace(q.Get("clientEmail")),
		ClientPhone: strings.TrimSpace(q.Get("clientPhone")),
		Pagination:  shared.PaginationFromQuery(q, defaultPageSize),
	}
	for key, dst := range map[string]*string{"minVisitDate": &filter.MinVisitDate, "maxVisitDate": &filter.MaxVisitDate} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, raw); err != nil {
			return filter, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", httpx.ErrValidation, key)
		}
		*dst = raw
	}
	if status := Status(q.Get("status")); status != "" {
		if !status.Valid() {
			return filter, fmt.Errorf("%w: status must be one of pending, confirmed, cancelled, completed", httpx.ErrValidation)
		}
		filter.Status = status
	}
	if carID := q.Get("carId"); carID != "" {
		id, err := uuid.Parse(carID)
		if err != nil {
			return filter, fmt.Errorf("%w: carId must be a UUID", httpx.ErrValidation)
		}
		filter.CarID = id.String()
	}
	switch dir := strings.ToLower(q.Get("sortByVisitDate")); dir {
	case "", "asc", "desc":
		filter.SortByVisitDate = dir
	default:
		return filter, fmt.Errorf("%w: sortByVisitDate must be asc or desc", httpx.ErrValidation)
	}
	return filter, nil
}
