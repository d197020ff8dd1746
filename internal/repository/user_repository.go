package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

const userCols = "id,email,password_hash,role,first_name,last_name,is_active,created_at,updated_at"

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search   string // matches email, first or last name, case-insensitive
	Role     string
	IsActive *bool
	Page     int
	PageSize int
}

// List returns users matching the filter, newest first, with the total
// match count for pagination metadata.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	where := []string{}
	args := []any{}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		where = append(where, "(LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.IsActive)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.PageSize
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	argsData := append(append([]any{}, args...), limit, offset)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userCols+" FROM users WHERE "+cond+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var (
			u         model.User
			firstName sql.NullString
			lastName  sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
			&firstName, &lastName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if firstName.Valid {
			v := firstName.String
			u.FirstName = &v
		}
		if lastName.Valid {
			v := lastName.String
			u.LastName = &v
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// UpdateProfile changes the profile fields that are non-nil.  Nil
// fields are left untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, firstName, lastName *string) error {
	set := []string{}
	args := []any{}
	if firstName != nil {
		set = append(set, "first_name = ?")
		args = append(args, *firstName)
	}
	if lastName != nil {
		set = append(set, "last_name = ?")
		args = append(args, *lastName)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	// Zero rows is either a missing user or an update to the same
	// values; only the former is an error.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		} else if err != nil {
			return err
		}
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActive flips the account's active flag.  Deactivated users fail
// the login check; revoking their refresh tokens is the caller's job.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&firstName, &lastName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	if firstName.Valid {
		v := firstName.String
		u.FirstName = &v
	}
	if lastName.Valid {
		v := lastName.String
		u.LastName = &v
	}
	return u, nil
}
