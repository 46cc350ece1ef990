// Package vaultindex provides an optional PostgreSQL mirror of canonical
// message records for history queries. The vault files on disk remain the
// source of truth; the index is advisory and may lag or miss rows.
package vaultindex

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/bloodroom/sanctum/internal/message"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store mirrors vault records into PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL at dsn, applies pending migrations, and returns
// a ready store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("vaultindex: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("vaultindex: ping: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("vaultindex: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("vaultindex: init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("vaultindex: migrate up: %w", err)
	}
	return nil
}

// Insert mirrors one canonical record. Inserting the same idempotency key
// twice is a no-op thanks to the unique index on key.
func (s *Store) Insert(ctx context.Context, rec *message.Record) error {
	recipients, err := json.Marshal(rec.Recipients)
	if err != nil {
		return fmt.Errorf("vaultindex: marshal recipients: %w", err)
	}

	const query = `
		INSERT INTO vault_index (id, key, author, recipients, text, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Key, string(rec.Author), recipients, rec.Text, rec.At,
	); err != nil {
		return fmt.Errorf("vaultindex: insert: %w", err)
	}
	return nil
}

// Delete removes the index row for a record id, if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vault_index WHERE id = $1`, id); err != nil {
		return fmt.Errorf("vaultindex: delete: %w", err)
	}
	return nil
}

// History returns up to limit records sent by or to the given member, newest
// first.
func (s *Store) History(ctx context.Context, m message.Member, limit int) ([]message.Record, error) {
	const query = `
		SELECT id, key, author, recipients, text, at
		FROM vault_index
		WHERE author = $1 OR recipients::jsonb ? $1
		ORDER BY at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, string(m), limit)
	if err != nil {
		return nil, fmt.Errorf("vaultindex: history: %w", err)
	}
	defer rows.Close()

	var out []message.Record
	for rows.Next() {
		var rec message.Record
		var recipients []byte
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Author, &recipients, &rec.Text, &rec.At); err != nil {
			return nil, fmt.Errorf("vaultindex: scan: %w", err)
		}
		if err := json.Unmarshal(recipients, &rec.Recipients); err != nil {
			return nil, fmt.Errorf("vaultindex: decode recipients: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vaultindex: history rows: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
