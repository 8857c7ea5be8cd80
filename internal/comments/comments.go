package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// Comment is a visitor's review of a car.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Mark      int       `json:"mark"`
	CarID     string    `json:"carId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateInput is the public comment payload.
type CreateInput struct {
	Content string `json:"content" validate:"required,max=2000"`
	Mark    int    `json:"mark" validate:"required,min=1,max=5"`
	CarID   string `json:"carId" validate:"required,uuid"`
}

// Repository persists comments.
type Repository interface {
	CarExists(ctx context.Context, carID string) (bool, error)
	Create(ctx context.Context, c Comment) (Comment, error)
	ListByCar(ctx context.Context, carID string) ([]Comment, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CarExists(ctx context.Context, carID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cars WHERE id = $1)`, carID).Scan(&ok)
	return ok, err
}

func (r *repository) Create(ctx context.Context, c Comment) (Comment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO comments (content, mark, car_id) VALUES ($1, $2, $3)
RETURNING id, created_at`, c.Content, c.Mark, c.CarID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (r *repository) ListByCar(ctx context.Context, carID string) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, content, mark, car_id, created_at FROM comments
WHERE car_id = $1 ORDER BY created_at DESC, id`, carID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.Mark, &c.CarID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Service implements car reviews.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create stores a comment on an existing car.
func (s *Service) Create(ctx context.Context, input CreateInput) (Comment, error) {
	ok, err := s.repo.CarExists(ctx, input.CarID)
	if err != nil {
		return Comment{}, fmt.Errorf("check car: %w", err)
	}
	if !ok {
		return Comment{}, fmt.Errorf("%w: car not found", httpx.ErrNotFound)
	}
	created, err := s.repo.Create(ctx, Comment{Content: strings.TrimSpace(input.Content), Mark: input.Mark, CarID: input.CarID})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Comment{}, fmt.Errorf("%w: car not found", httpx.ErrNotFound)
		}
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return created, nil
}

// ListByCar returns the comments of one car, newest first.
func (s *Service) ListByCar(ctx context.Context, carID string) ([]Comment, error) {
	return s.repo.ListByCar(ctx, carID)
}

// Delete removes a comment.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("comment deleted", slog.String("comment_id", id))
	return nil
}
