package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (r *Repo) CountUsers(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users(username, password_hash, name, lastname, role, created_at) VALUES (?,?,?,?,?,?)`,
		u.Username, u.PasswordHash, u.Name, u.Lastname, u.Role, now.UnixNano(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.CreatedAt = now
	return nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, username, password_hash, name, lastname, role, created_at
	FROM users WHERE username = ?`, username)
	var u User
	var created int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Lastname, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(0, created)
	return &u, nil
}
