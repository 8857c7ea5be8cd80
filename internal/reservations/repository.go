package reservations

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// Repository persists reservations.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Reservation, int, error)
	Get(ctx context.Context, id string) (Reservation, error)
	Car(ctx context.Context, carID string) (CarSummary, error)
	Create(ctx context.Context, r Reservation) (Reservation, error)
	UpdateLocked(ctx context.Context, id string, fn func(current Reservation) (Reservation, error)) (Reservation, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const reservationColumns = `r.id, r.client_name, r.client_email, r.client_phone,
to_char(r.visit_date, 'YYYY-MM-DD'), to_char(r.visit_time, 'HH24:MI'), r.status, r.car_id,
c.brand, c.model, c.year, r.created_at, r.updated_at`

const reservationFrom = ` FROM reservations r JOIN cars c ON c.id = r.car_id`

func scanReservation(row interface{ Scan(...any) error }) (Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.ClientName, &r.ClientEmail, &r.ClientPhone, &r.VisitDate, &r.VisitTime,
		&r.Status, &r.CarID, &r.Car.Brand, &r.Car.Model, &r.Car.Year, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Reservation{}, httpx.ErrNotFound
		}
		return Reservation{}, err
	}
	r.Car.ID = r.CarID
	return r, nil
}

func (s *repository) List(ctx context.Context, filter ListFilter) ([]Reservation, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservations r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "r.created_at DESC, r.id"
	switch filter.SortByVisitDate {
	case "asc":
		order = "r.visit_date ASC, r.visit_time ASC, r.id"
	case "desc":
		order = "r.visit_date DESC, r.visit_time DESC, r.id"
	}
	query := `SELECT ` + reservationColumns + reservationFrom + where + ` ORDER BY ` + order +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Reservation, 0, filter.Limit)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (s *repository) Get(ctx context.Context, id string) (Reservation, error) {
	return scanReservation(s.pool.QueryRow(ctx, `SELECT `+reservationColumns+reservationFrom+` WHERE r.id = $1`, id))
}

func (s *repository) Car(ctx context.Context, carID string) (CarSummary, error) {
	c := CarSummary{ID: carID}
	err := s.pool.QueryRow(ctx, `SELECT brand, model, year FROM cars WHERE id = $1`, carID).Scan(&c.Brand, &c.Model, &c.Year)
	if err != nil {
		if db.IsNoRows(err) {
			return CarSummary{}, httpx.ErrNotFound
		}
		return CarSummary{}, err
	}
	return c, nil
}

func (s *repository) Create(ctx context.Context, r Reservation) (Reservation, error) {
	var id string
	err := s.pool.QueryRow(ctx, `INSERT INTO reservations
(client_name, client_email, client_phone, visit_date, visit_time, status, car_id)
VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
RETURNING id`, r.ClientName, r.ClientEmail, r.ClientPhone, r.VisitDate, r.VisitTime, r.Status, r.CarID).Scan(&id)
	if err != nil {
		return Reservation{}, err
	}
	return s.Get(ctx, id)
}

func (s *repository) UpdateLocked(ctx context.Context, id string, fn func(current Reservation) (Reservation, error)) (Reservation, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := scanReservation(tx.QueryRow(ctx, `SELECT `+reservationColumns+reservationFrom+` WHERE r.id = $1 FOR UPDATE OF r`, id))
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE reservations SET
client_name = $2, client_email = $3, client_phone = $4, visit_date = $5::date, visit_time = $6::time,
status = $7, updated_at = NOW()
WHERE id = $1`, id, next.ClientName, next.ClientEmail, next.ClientPhone, next.VisitDate, next.VisitTime, next.Status)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}
	return s.Get(ctx, id)
}

func (s *repository) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func filterClause(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.ClientName != "" {
		add("r.client_name ILIKE ?", "%"+f.ClientName+"%")
	}
	if f.ClientEmail != "" {
		add("r.client_email ILIKE ?", "%"+f.ClientEmail+"%")
	}
	if f.ClientPhone != "" {
		add("r.client_phone ILIKE ?", "%"+f.ClientPhone+"%")
	}
	if f.MinVisitDate != "" {
		add("r.visit_date >= ?::date", f.MinVisitDate)
	}
	if f.MaxVisitDate != "" {
		add("r.visit_date <= ?::date", f.MaxVisitDate)
	}
	if f.Status != "" {
		add("r.status = ?", f.Status)
	}
	if f.CarID != "" {
		add("r.car_id = ?", f.CarID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
