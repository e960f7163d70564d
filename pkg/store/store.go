// Package store persists per-user online flags. The presence hub is the only
// writer; reads belong to the surrounding application.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuslink/presence/internal/config"
	"github.com/campuslink/presence/internal/logging"
	"github.com/redis/go-redis/v9"
)

// StatusStore is the persistence collaborator consumed by the presence hub.
// Implementations must treat SetOnline as idempotent: flipping the flag for a
// user that is already in that state, or that the store has never seen, is not
// an error.
type StatusStore interface {
	// SetOnline updates the persisted online flag for a user.
	SetOnline(ctx context.Context, userID string, online bool) error

	// MarkAllOffline clears the online flag for every user currently marked
	// online and returns how many were affected. Runs at startup to reconcile
	// flags left behind by a crash.
	MarkAllOffline(ctx context.Context) (int64, error)

	// Close releases the underlying resources.
	Close() error
}

// Open builds the store selected by the configuration.
func Open(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (StatusStore, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		if err := RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewPostgresStore(db), nil

	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opt.DB = cfg.RedisDB
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return NewRedisStore(client), nil

	case "memory":
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
