package cars

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// Repository persists cars. The *Locked methods run fn inside a transaction
// holding a row lock on the car, so concurrent changes to one car serialize.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Car, int, error)
	Get(ctx context.Context, id string) (Car, error)
	Create(ctx context.Context, car Car) (Car, error)
	UpdateLocked(ctx context.Context, id string, fn func(current Car) (Car, error)) (Car, error)
	DeleteLocked(ctx context.Context, id string, fn func(current Car) error) (Car, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const carColumns = `c.id, c.brand, c.model, COALESCE(c.description, ''), c.year, c.price, c.kilometer_age,
c.status, c.condition, c.images, c.features, c.user_id, c.created_at, c.updated_at`

const commentCount = `(SELECT COUNT(*) FROM comments cm WHERE cm.car_id = c.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCar(row rowScanner, extra ...any) (Car, error) {
	var (
		c        Car
		images   []string
		features []string
	)
	dest := []any{&c.ID, &c.Brand, &c.Model, &c.Description, &c.Year, &c.Price, &c.KilometerAge,
		&c.Status, &c.Condition, &images, &features, &c.UserID, &c.CreatedAt, &c.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if db.IsNoRows(err) {
			return Car{}, httpx.ErrNotFound
		}
		return Car{}, err
	}
	c.Images = media.MediaSetFromStrings(images)
	if features == nil {
		features = []string{}
	}
	c.Features = features
	return c, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Car, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cars c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + carColumns + `, ` + commentCount + ` FROM cars c` + where +
		` ORDER BY ` + sortOrder(filter.SortBy, filter.SortDesc)
	query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filter.Limit, filter.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Car, 0, filter.Limit)
	for rows.Next() {
		var comments int
		car, err := scanCar(rows, &comments)
		if err != nil {
			return nil, 0, err
		}
		car.TotalComments = comments
		items = append(items, car)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (Car, error) {
	var comments int
	car, err := scanCar(r.pool.QueryRow(ctx, `SELECT `+carColumns+`, `+commentCount+` FROM cars c WHERE c.id = $1`, id), &comments)
	car.TotalComments = comments
	return car, err
}

func (r *repository) Create(ctx context.Context, car Car) (Car, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO cars AS c
(brand, model, description, year, price, kilometer_age, status, condition, images, features, user_id)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+carColumns,
		car.Brand, car.Model, car.Description, car.Year, car.Price, car.KilometerAge, car.Status,
		car.Condition, car.Images.Strings(), nonNil(car.Features), car.UserID)
	return scanCar(row)
}

func (r *repository) UpdateLocked(ctx context.Context, id string, fn func(current Car) (Car, error)) (Car, error) {
	var updated Car
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockCar(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		updated, err = scanCar(tx.QueryRow(ctx, `UPDATE cars AS c SET
brand = $2, model = $3, description = NULLIF($4, ''), year = $5, price = $6, kilometer_age = $7,
status = $8, condition = $9, images = $10, features = $11, updated_at = NOW()
WHERE c.id = $1
RETURNING `+carColumns,
			id, next.Brand, next.Model, next.Description, next.Year, next.Price, next.KilometerAge,
			next.Status, next.Condition, next.Images.Strings(), nonNil(next.Features)))
		return err
	})
	if err != nil {
		return Car{}, err
	}
	return updated, nil
}

func (r *repository) DeleteLocked(ctx context.Context, id string, fn func(current Car) error) (Car, error) {
	var deleted Car
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockCar(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cars WHERE id = $1`, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return Car{}, err
	}
	return deleted, nil
}

func lockCar(ctx context.Context, tx pgx.Tx, id string) (Car, error) {
	return scanCar(tx.QueryRow(ctx, `SELECT `+carColumns+` FROM cars c WHERE c.id = $1 FOR UPDATE`, id))
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
	if f.Brand != "" {
		add("c.brand ILIKE ?", "%"+f.Brand+"%")
	}
	if f.Model != "" {
		add("c.model ILIKE ?", "%"+f.Model+"%")
	}
	if f.MinYear != nil {
		add("c.year >= ?", *f.MinYear)
	}
	if f.MaxYear != nil {
		add("c.year <= ?", *f.MaxYear)
	}
	if f.MinPrice != nil {
		add("c.price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("c.price <= ?", *f.MaxPrice)
	}
	if f.MinKilometerAge != nil {
		add("c.kilometer_age >= ?", *f.MinKilometerAge)
	}
	if f.MaxKilometerAge != nil {
		add("c.kilometer_age <= ?", *f.MaxKilometerAge)
	}
	if f.Status != "" {
		add("c.status = ?", f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sortOrder(field SortField, desc bool) string {
	column := "c.created_at"
	switch field {
	case SortPrice:
		column = "c.price"
	case SortYear:
		column = "c.year"
	case SortKilometerAge:
		column = "c.kilometer_age"
	case SortCreatedAt, "":
		return "c.created_at DESC, c.id"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return column + " " + dir + ", c.id"
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
