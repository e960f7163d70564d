package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/campuslink/presence/pkg/store/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists online flags in the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SetOnline(ctx context.Context, userID string, online bool) error {
	query :=
		`UPDATE users SET is_online = $2, last_seen = now()
		 WHERE id = $1
		 `

	if _, err := s.db.ExecContext(ctx, query, userID, online); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *PostgresStore) MarkAllOffline(ctx context.Context) (int64, error) {
	query :=
		`UPDATE users SET is_online = false
		 WHERE is_online = true
		 `

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return affected, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
