// Package postgres implements identity.Store against the ticket backend's
// member table using database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx database/sql driver

	"github.com/ticketdesk/ticketdesk/identity"
)

var _ identity.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens and pings a Postgres connection pool.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	return s.find(ctx, `
		SELECT id, username, password_hash, role, profile_pic_url, refresh_token, refresh_token_issued_at
		FROM members
		WHERE username = $1
	`, username)
}

func (s *Store) FindByID(ctx context.Context, id string) (*identity.Identity, error) {
	return s.find(ctx, `
		SELECT id, username, password_hash, role, profile_pic_url, refresh_token, refresh_token_issued_at
		FROM members
		WHERE id = $1
	`, id)
}

func (s *Store) FindByRefreshToken(ctx context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, identity.ErrNotFound
	}
	return s.find(ctx, `
		SELECT id, username, password_hash, role, profile_pic_url, refresh_token, refresh_token_issued_at
		FROM members
		WHERE refresh_token = $1
	`, token)
}

func (s *Store) find(ctx context.Context, query string, arg any) (*identity.Identity, error) {
	var (
		ident     identity.Identity
		role      string
		pic       sql.NullString
		token     sql.NullString
		tokenTime sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&ident.ID, &ident.Username, &ident.PasswordHash, &role, &pic, &token, &tokenTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("query member: %w", err)
	}

	ident.Role = identity.Role(role)
	ident.ProfilePicURL = pic.String
	ident.RefreshToken = token.String
	if tokenTime.Valid {
		ident.RefreshTokenIssuedAt = tokenTime.Time
	}
	return &ident, nil
}

func (s *Store) UpdateRefreshToken(ctx context.Context, id string, token string) error {
	var tokenValue any
	if token != "" {
		tokenValue = token
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET refresh_token = $2, refresh_token_issued_at = $3
		WHERE id = $1
	`, id, tokenValue, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	return requireRow(result)
}

// ReplaceRefreshToken relies on a conditional UPDATE for atomicity: the
// database serializes the two writes, so of two racing rotations only one
// matches the old value.
func (s *Store) ReplaceRefreshToken(ctx context.Context, id string, old, new string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET refresh_token = $3, refresh_token_issued_at = $4
		WHERE id = $1 AND refresh_token = $2
	`, id, old, new, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("replace refresh token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace refresh token rows affected: %w", err)
	}
	return affected == 1, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return identity.ErrNotFound
	}
	return nil
}
