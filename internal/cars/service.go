package cars

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

// Service implements car listings and their image lifecycle.
type Service struct {
	repo       Repository
	reconciler *media.Reconciler
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, reconciler *media.Reconciler, logger *slog.Logger) *Service {
	return &Service{repo: repo, reconciler: reconciler, logger: logger}
}

// List returns one page of the catalogue.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Car], error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Car]{}, fmt.Errorf("list cars: %w", err)
	}
	return shared.NewPage(items, filter.Pagination, total), nil
}

// Get returns one car.
func (s *Service) Get(ctx context.Context, id string) (Car, error) {
	return s.repo.Get(ctx, id)
}

// Create lists a new car owned by owner with the uploaded images.
func (s *Service) Create(ctx context.Context, owner rbac.Identity, input CreateInput, uploaded []media.Reference) (Car, error) {
	plan, err := s.reconciler.Plan(ctx, nil, nil, uploaded)
	if err != nil {
		return Car{}, err
	}
	car, err := s.repo.Create(ctx, Car{
		Brand:        strings.TrimSpace(input.Brand),
		Model:        strings.TrimSpace(input.Model),
		Description:  input.Description,
		Year:         input.Year,
		Price:        input.Price,
		KilometerAge: input.KilometerAge,
		Status:       input.Status,
		Condition:    input.Condition,
		Images:       plan.Target,
		Features:     input.Features,
		UserID:       owner.ID,
	})
	if err != nil {
		return Car{}, fmt.Errorf("create car: %w", err)
	}
	s.logger.Info("car created", slog.String("car_id", car.ID), slog.Int("images", len(car.Images)))
	return car, nil
}

// Update applies a partial update. With a non-nil change the image set is
// reconciled under the car's row lock; superseded files are deleted after the
// update commits.
func (s *Service) Update(ctx context.Context, id string, actor rbac.Identity, input UpdateInput, change *MediaChange) (Car, error) {
	var plan media.Plan
	updated, err := s.repo.UpdateLocked(ctx, id, func(current Car) (Car, error) {
		if current.UserID != actor.ID {
			return Car{}, fmt.Errorf("%w: car belongs to another agent", httpx.ErrForbidden)
		}
		if change != nil {
			p, err := s.reconciler.Plan(ctx, current.Images, change.Keep, change.Uploaded)
			if err != nil {
				return Car{}, err
			}
			plan = p
			current.Images = p.Target
		}
		input.apply(&current)
		return current, nil
	})
	if err != nil {
		return Car{}, err
	}
	s.reconciler.Finalize(ctx, plan)
	return updated, nil
}

// ReplaceImages adds uploaded to the car's images, or replaces them all when
// replaceAll is set.
func (s *Service) ReplaceImages(ctx context.Context, id string, actor rbac.Identity, uploaded []media.Reference, replaceAll bool) (Car, error) {
	if len(uploaded) == 0 {
		return Car{}, fmt.Errorf("%w: at least one image is required", httpx.ErrValidation)
	}
	var plan media.Plan
	updated, err := s.repo.UpdateLocked(ctx, id, func(current Car) (Car, error) {
		if current.UserID != actor.ID {
			return Car{}, fmt.Errorf("%w: car belongs to another agent", httpx.ErrForbidden)
		}
		var keep *[]media.Reference
		if !replaceAll {
			existing := []media.Reference(current.Images)
			keep = &existing
		}
		p, err := s.reconciler.Plan(ctx, current.Images, keep, uploaded)
		if err != nil {
			return Car{}, err
		}
		plan = p
		current.Images = p.Target
		return current, nil
	})
	if err != nil {
		return Car{}, err
	}
	s.reconciler.Finalize(ctx, plan)
	return updated, nil
}

// Delete removes the car record, then its images.
func (s *Service) Delete(ctx context.Context, id string, actor rbac.Identity) error {
	deleted, err := s.repo.DeleteLocked(ctx, id, func(current Car) error {
		if current.UserID != actor.ID {
			return fmt.Errorf("%w: car belongs to another agent", httpx.ErrForbidden)
		}
		return nil
	})
	if err != nil {
		return err
	}
	report := s.reconciler.Discard(ctx, deleted.Images)
	s.logger.Info("car deleted", slog.String("car_id", id), slog.Int("images_removed", len(report.Deleted)))
	return nil
}
