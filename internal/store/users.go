package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `id, username, password, email, first_name, last_name,
		is_active, is_staff, is_superuser, date_joined, last_login`

// Users is the users repository.
type Users struct {
	db DBTX
}

// NewUsers returns a Users repository bound to db.
func NewUsers(db DBTX) *Users {
	return &Users{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Username, &u.Password, &u.Email, &u.FirstName, &u.LastName,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.DateJoined, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// Create inserts user and fills its ID. DateJoined defaults to now.
func (r *Users) Create(ctx context.Context, user *User) (*User, error) {
	if user.DateJoined.IsZero() {
		user.DateJoined = Truncate(time.Now())
	}
	query := `INSERT INTO users (username, password, email, first_name, last_name,
		is_active, is_staff, is_superuser, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Password, user.Email, user.FirstName, user.LastName,
		user.IsActive, user.IsStaff, user.IsSuperuser, user.DateJoined).Scan(&user.ID)
	if err != nil {
		return nil, wrap(err)
	}
	return user, nil
}

// GetByID returns the user with id.
func (r *Users) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// GetByUsername returns the user with an exact username.
func (r *Users) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// UsernameTaken reports whether another user than exceptID has username.
func (r *Users) UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = $1 AND id <> $2`, username, exceptID).Scan(&n)
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// List returns every user, newest first.
func (r *Users) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY date_joined DESC, id DESC`)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return users, nil
}

// Update writes every mutable field of user.
func (r *Users) Update(ctx context.Context, user *User) error {
	query := `UPDATE users SET username = $1, password = $2, email = $3,
		first_name = $4, last_name = $5, is_active = $6, is_staff = $7, is_superuser = $8
		WHERE id = $9`
	res, err := r.db.ExecContext(ctx, query,
		user.Username, user.Password, user.Email, user.FirstName, user.LastName,
		user.IsActive, user.IsStaff, user.IsSuperuser, user.ID)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// SetPassword replaces the stored password hash.
func (r *Users) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// TouchLogin records a successful login.
func (r *Users) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, Truncate(at), id)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// Delete removes a user. Cache entries referencing it keep a null reference.
func (r *Users) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// Count returns the number of users.
func (r *Users) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// Summaries resolves user ids to their display data in one query.
func (r *Users) Summaries(ctx context.Context, ids []int64) (map[int64]*User, error) {
	out := make(map[int64]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	placeholders := make([]byte, 0, len(ids)*4)
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ", "...)
		}
		placeholders = fmt.Appendf(placeholders, "$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
