package users

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/platform/db"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
)

// Repository persists accounts. UpdateLocked runs fn while holding the row
// lock on the user so profile image swaps serialize.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id string) (User, error)
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	Create(ctx context.Context, account NewAccount) (User, error)
	UpdateLocked(ctx context.Context, id string, fn func(current User) (User, error)) (User, error)
	SetActive(ctx context.Context, id string, active bool) (User, error)
	SetRole(ctx context.Context, id string, role rbac.Role) (User, error)
	PasswordHash(ctx context.Context, id string) (string, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) (Removed, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const userColumns = `u.id, u.email, COALESCE(u.name, ''), COALESCE(u.image, ''), COALESCE(u.location, ''),
COALESCE(u.phone, ''), u.role, u.is_active, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.Location, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM users u` + where + ` ORDER BY u.created_at DESC, u.id` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]User, 0, filter.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
}

func (r *repository) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id::text <> $2)`,
		email, exceptID).Scan(&taken)
	return taken, err
}

func (r *repository) Create(ctx context.Context, account NewAccount) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users AS u (email, name, password_hash, role, is_active)
VALUES ($1, NULLIF($2, ''), $3, $4, $5)
RETURNING `+userColumns, account.Email, account.Name, account.PasswordHash, account.Role, account.IsActive)
	created, err := scanUser(row)
	if err != nil && db.IsUniqueViolation(err) {
		return User{}, httpx.ErrDuplicate
	}
	return created, err
}

func (r *repository) UpdateLocked(ctx context.Context, id string, fn func(current User) (User, error)) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		updated, err = scanUser(tx.QueryRow(ctx, `UPDATE users AS u SET
email = $2, name = NULLIF($3, ''), image = NULLIF($4, ''), location = NULLIF($5, ''), phone = NULLIF($6, ''),
updated_at = NOW()
WHERE u.id = $1
RETURNING `+userColumns, id, next.Email, next.Name, string(next.Image), next.Location, next.Phone))
		if err != nil && db.IsUniqueViolation(err) {
			return httpx.ErrDuplicate
		}
		return err
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func (r *repository) SetActive(ctx context.Context, id string, active bool) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `UPDATE users AS u SET is_active = $2, updated_at = NOW()
WHERE u.id = $1 RETURNING `+userColumns, id, active))
}

func (r *repository) SetRole(ctx context.Context, id string, role rbac.Role) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `UPDATE users AS u SET role = $2, updated_at = NOW()
WHERE u.id = $1 RETURNING `+userColumns, id, role))
}

func (r *repository) PasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	if err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash); err != nil {
		if db.IsNoRows(err) {
			return "", httpx.ErrNotFound
		}
		return "", err
	}
	return hash, nil
}

func (r *repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Delete removes the account and, through the foreign key cascade, its cars.
// The media of both is collected under row locks in the same transaction.
func (r *repository) Delete(ctx context.Context, id string) (Removed, error) {
	var removed Removed
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT images FROM cars WHERE user_id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		var carImages []media.Reference
		for rows.Next() {
			var images []string
			if err := rows.Scan(&images); err != nil {
				rows.Close()
				return err
			}
			carImages = append(carImages, media.MediaSetFromStrings(images)...)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return err
		}
		removed = Removed{User: user, CarImages: carImages}
		return nil
	})
	if err != nil {
		return Removed{}, err
	}
	return removed, nil
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
	if f.Email != "" {
		add("u.email ILIKE ?", "%"+f.Email+"%")
	}
	if f.Name != "" {
		add("u.name ILIKE ?", "%"+f.Name+"%")
	}
	if f.Role != "" {
		add("u.role = ?", f.Role)
	}
	if f.CreatedFrom != nil {
		add("u.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("u.created_at <= ?", *f.CreatedTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
