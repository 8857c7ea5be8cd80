package cars

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

const defaultPageSize = 20

// Handler exposes car endpoints.
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

// MountRoutes registers car routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Public()).Get("/", h.list)
	r.With(h.rbac.Public()).Get("/{id}", h.get)
	r.With(h.rbac.Require(rbac.CreateCar)).Post("/", h.create)
	r.With(h.rbac.Require(rbac.UpdateCar)).Patch("/{id}", h.update)
	r.With(h.rbac.Require(rbac.UpdateCar)).Patch("/{id}/images", h.updateImages)
	r.With(h.rbac.Require(rbac.DeleteCar)).Delete("/{id}", h.delete)
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
	id, err := carID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	car, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, car)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	h.intake.Limit(w, r)
	uploaded, err := h.intake.Receive(r, "images")
	if err != nil {
		h.respondError(w, err)
		return
	}

	var car Car
	err = h.compensator.Run(r.Context(), uploaded, func(ctx context.Context) error {
		input, err := decodeCreate(r)
		if err != nil {
			return err
		}
		if err := h.validate(input); err != nil {
			return err
		}
		car, err = h.service.Create(ctx, identity, input, uploaded)
		return err
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, car)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := carID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.intake.Limit(w, r)
	uploaded, err := h.intake.Receive(r, "images")
	if err != nil {
		h.respondError(w, err)
		return
	}

	var car Car
	err = h.compensator.Run(r.Context(), uploaded, func(ctx context.Context) error {
		input, change, err := decodeUpdate(r, uploaded)
		if err != nil {
			return err
		}
		if err := h.validate(input); err != nil {
			return err
		}
		car, err = h.service.Update(ctx, id, identity, input, change)
		return err
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, car)
}

func (h *Handler) updateImages(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := carID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.intake.Limit(w, r)
	uploaded, err := h.intake.Receive(r, "images")
	if err != nil {
		h.respondError(w, err)
		return
	}

	var car Car
	err = h.compensator.Run(r.Context(), uploaded, func(ctx context.Context) error {
		replaceAll, _ := strconv.ParseBool(r.FormValue("replaceAll"))
		car, err = h.service.ReplaceImages(ctx, id, identity, uploaded, replaceAll)
		return err
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, car)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	id, err := carID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, identity); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Car deleted successfully"})
}

func (h *Handler) validate(input any) error {
	if err := h.validator.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationSummary(err))
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("car request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func carID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: car id must be a UUID", httpx.ErrValidation)
	}
	return id.String(), nil
}

func decodeCreate(r *http.Request) (CreateInput, error) {
	var input CreateInput
	if r.MultipartForm == nil {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			return input, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		return input, nil
	}
	form := formValues(r.MultipartForm.Value)
	input.Brand = form.get("brand")
	input.Model = form.get("model")
	input.Description = form.get("description")
	input.Status = Status(form.get("status"))
	input.Condition = form.get("condition")
	var err error
	if input.Year, err = form.integer("year"); err != nil {
		return input, err
	}
	if input.Price, err = form.float("price"); err != nil {
		return input, err
	}
	if input.KilometerAge, err = form.integer("kilometerAge"); err != nil {
		return input, err
	}
	if input.Features, _, err = form.list("features"); err != nil {
		return input, err
	}
	return input, nil
}

// decodeUpdate reads a partial update. A multipart request always reconciles
// images: imagesToKeep lists the images to retain and an absent list keeps
// none. A JSON request only touches images when imagesToKeep is present.
func decodeUpdate(r *http.Request, uploaded []media.Reference) (UpdateInput, *MediaChange, error) {
	var input UpdateInput
	if r.MultipartForm == nil {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			return input, nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		if input.ImagesToKeep == nil {
			return input, nil, nil
		}
		keep := toReferences(*input.ImagesToKeep)
		return input, &MediaChange{Keep: &keep, Uploaded: uploaded}, nil
	}

	form := formValues(r.MultipartForm.Value)
	input.Brand = form.optional("brand")
	input.Model = form.optional("model")
	input.Description = form.optional("description")
	input.Condition = form.optional("condition")
	if v := form.optional("status"); v != nil {
		status := Status(*v)
		input.Status = &status
	}
	var err error
	if input.Year, err = form.optionalInteger("year"); err != nil {
		return input, nil, err
	}
	if input.KilometerAge, err = form.optionalInteger("kilometerAge"); err != nil {
		return input, nil, err
	}
	if v := form.optional("price"); v != nil {
		price, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			return input, nil, fmt.Errorf("%w: price must be a number", httpx.ErrValidation)
		}
		input.Price = &price
	}
	if features, ok, err := form.list("features"); err != nil {
		return input, nil, err
	} else if ok {
		input.Features = &features
	}
	kept, _, err := form.list("imagesToKeep")
	if err != nil {
		return input, nil, err
	}
	keep := toReferences(kept)
	return input, &MediaChange{Keep: &keep, Uploaded: uploaded}, nil
}

func toReferences(values []string) []media.Reference {
	out := make([]media.Reference, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, media.Reference(v))
		}
	}
	return out
}

type formValues map[string][]string

func (f formValues) get(key string) string {
	if values := f[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func (f formValues) optional(key string) *string {
	values, ok := f[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}

func (f formValues) integer(key string) (int, error) {
	raw := f.get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", httpx.ErrValidation, key)
	}
	return n, nil
}

func (f formValues) optionalInteger(key string) (*int, error) {
	if f.optional(key) == nil {
		return nil, nil
	}
	n, err := f.integer(key)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (f formValues) float(key string) (float64, error) {
	raw := f.get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", httpx.ErrValidation, key)
	}
	return n, nil
}

// list accepts a repeated field or a single JSON array.
func (f formValues) list(key string) ([]string, bool, error) {
	values, ok := f[key]
	if !ok {
		return nil, false, nil
	}
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var decoded []string
		if err := json.Unmarshal([]byte(values[0]), &decoded); err != nil {
			return nil, true, fmt.Errorf("%w: %s must be a JSON array of strings", httpx.ErrValidation, key)
		}
		return decoded, true, nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, true, nil
}

func parseListFilter(q url.Values) (ListFilter, error) {
	filter := ListFilter{
		Brand:      strings.TrimSpace(q.Get("brand")),
		Model:      strings.TrimSpace(q.Get("model")),
		Pagination: shared.PaginationFromQuery(q, defaultPageSize),
	}
	if status := q.Get("status"); status != "" {
		switch Status(status) {
		case StatusAvailable, StatusReserved, StatusSold:
			filter.Status = Status(status)
		default:
			return filter, fmt.Errorf("%w: status must be one of available, reserved, sold", httpx.ErrValidation)
		}
	}

	var err error
	ints := []struct {
		keys []string
		dst  **int
	}{
		{[]string{"minYear"}, &filter.MinYear},
		{[]string{"maxYear"}, &filter.MaxYear},
		{[]string{"minKilometerAge", "minkilometerAge"}, &filter.MinKilometerAge},
		{[]string{"maxKilometerAge", "maxkilometerAge"}, &filter.MaxKilometerAge},
	}
	for _, spec := range ints {
		if *spec.dst, err = queryInt(q, spec.keys...); err != nil {
			return filter, err
		}
	}
	if filter.MinPrice, err = queryFloat(q, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryFloat(q, "maxPrice"); err != nil {
		return filter, err
	}

	sorts := []struct {
		key   string
		field SortField
	}{
		{"sortByPrice", SortPrice},
		{"sortByYear", SortYear},
		{"sortByKilometerAge", SortKilometerAge},
	}
	for _, s := range sorts {
		dir := strings.ToLower(q.Get(s.key))
		if dir == "" {
			continue
		}
		if dir != "asc" && dir != "desc" {
			return filter, fmt.Errorf("%w: %s must be asc or desc", httpx.ErrValidation, s.key)
		}
		filter.SortBy = s.field
		filter.SortDesc = dir == "desc"
		break
	}
	return filter, nil
}

func queryInt(q url.Values, keys ...string) (*int, error) {
	for _, key := range keys {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", httpx.ErrValidation, key)
		}
		return &n, nil
	}
	return nil, nil
}

func queryFloat(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", httpx.ErrValidation, key)
	}
	return &n, nil
}

