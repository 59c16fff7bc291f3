package main

import (
	"context"
	"fmt"
	"time"

	"lumen-backend/internal/config"
	"lumen-backend/internal/store"
	"lumen-backend/internal/store/filestore"
	"lumen-backend/internal/store/postgres"
	"lumen-backend/internal/store/redisstore"
	"lumen-backend/internal/store/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
)

// openStore builds the backend selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	// Timeout for initial connection
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreDriverFile:
		return filestore.New(cfg.DataDir)

	case config.StoreDriverSQLite:
		return sqlite.New(cfg.SQLitePath)

	case config.StoreDriverPostgres:
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to create database connection pool: %w", err)
		}
		if err := dbpool.Ping(ctx); err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("unable to ping database: %w", err)
		}
		pg := postgres.NewPostgresStore(dbpool)
		if err := pg.Migrate(ctx); err != nil {
			dbpool.Close()
			return nil, err
		}
		return pg, nil

	case config.StoreDriverRedis:
		return redisstore.Open(ctx, cfg.RedisURL)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
