package users

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, u.FullName, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, active, created_at, updated_at
		FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, active, created_at, updated_at
		FROM users WHERE username = $1`, username))
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET username = $1, email = $2, full_name = $3, active = $4, updated_at = $5
		WHERE id = $6`,
		u.Username, u.Email, u.FullName, u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, email, full_name, active, created_at, updated_at
		FROM users ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		u := &User{}
		var fullName sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.Active,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if fullName.Valid {
			u.FullName = fullName.String
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var fullName sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.Active,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if fullName.Valid {
		u.FullName = fullName.String
	}
	return u, nil
}

// Migrate creates the users table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			username    TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL,
			full_name   TEXT,
			active      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
