package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autovisiontech/dealership/internal/shared"
)

// Mailer queues transactional e-mails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Service implements visit bookings.
type Service struct {
	repo   Repository
	mailer Mailer
	logger *slog.Logger
}

// NewService constructs a Service. mailer may be nil.
func NewService(repo Repository, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, logger: logger}
}

// Create books a visit of carID. The confirmation e-mail is queued best-effort:
// a queue failure is logged and the reservation stands.
func (s *Service) Create(ctx context.Context, carID string, input CreateInput) (Reservation, error) {
	car, err := s.repo.Car(ctx, carID)
	if err != nil {
		return Reservation{}, err
	}
	created, err := s.repo.Create(ctx, Reservation{
		ClientName:  strings.TrimSpace(input.ClientName),
		ClientEmail: strings.TrimSpace(input.ClientEmail),
		ClientPhone: strings.TrimSpace(input.ClientPhone),
		VisitDate:   input.VisitDate,
		VisitTime:   input.VisitTime,
		Status:      StatusPending,
		CarID:       car.ID,
	})
	if err != nil {
		return Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	s.notify(ctx, created, car)
	return created, nil
}

func (s *Service) notify(ctx context.Context, r Reservation, car CarSummary) {
	if s.mailer == nil {
		return
	}
	subject := "Your visit request for " + car.Title()
	body := fmt.Sprintf("Hello %s,\n\nWe received your request to see the %s on %s at %s. "+
		"An agent will contact you at %s to confirm.\n", r.ClientName, car.Title(), r.VisitDate, r.VisitTime, r.ClientPhone)
	if err := s.mailer.SendEmail(context.WithoutCancel(ctx), r.ClientEmail, subject, body); err != nil {
		s.logger.Warn("reservation e-mail not queued", slog.String("reservation_id", r.ID), slog.Any("error", err))
	}
}

// List returns one page of reservations.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Reservation], error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Reservation]{}, fmt.Errorf("list reservations: %w", err)
	}
	return shared.NewPage(items, filter.Pagination, total), nil
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id string) (Reservation, error) {
	return s.repo.Get(ctx, id)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Reservation, error) {
	return s.repo.UpdateLocked(ctx, id, func(current Reservation) (Reservation, error) {
		input.apply(&current)
		return current, nil
	})
}

// SetStatus moves the reservation to status.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Reservation, error) {
	updated, err := s.repo.UpdateLocked(ctx, id, func(current Reservation) (Reservation, error) {
		current.Status = status
		return current, nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.logger.Info("reservation status changed", slog.String("reservation_id", id), slog.String("status", string(status)))
	return updated, nil
}

// Delete removes a reservation.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
