// Package repository provides durable backends for the broker's session record.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/keeperbridge/internal/session"
)

// PostgresSessionRepository stores one session row per profile in PostgreSQL.
type PostgresSessionRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// Profile identifies the row; several brokers may share a database.
	Profile string
}

// NewPostgresSessionRepository creates a repository bound to profile.
// db must be a valid *sql.DB connected to a PostgreSQL instance with the
// sessions schema applied.
func NewPostgresSessionRepository(db *sql.DB, profile string) *PostgresSessionRepository {
	return &PostgresSessionRepository{DB: db, Profile: profile}
}

// Load returns the stored record, or the zero Record when the profile has none.
func (r *PostgresSessionRepository) Load(ctx context.Context) (session.Record, error) {
	var rec session.Record
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT access_token, master_password FROM sessions WHERE profile = $1`,
		r.Profile,
	).Scan(&rec.AccessToken, &rec.MasterPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, nil
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("select session: %w", err)
	}
	return rec, nil
}

// Save upserts both fields in one statement.
func (r *PostgresSessionRepository) Save(ctx context.Context, rec session.Record) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO sessions (profile, access_token, master_password, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (profile) DO UPDATE
		   SET access_token = EXCLUDED.access_token,
		       master_password = EXCLUDED.master_password,
		       updated_at = NOW()`,
		r.Profile, rec.AccessToken, rec.MasterPassword,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Clear deletes the profile's row.
func (r *PostgresSessionRepository) Clear(ctx context.Context) error {
	_, err := r.DB.ExecContext(
		ctx,
		`DELETE FROM sessions WHERE profile = $1`,
		r.Profile,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
