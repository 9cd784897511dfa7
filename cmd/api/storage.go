package main

import (
	"context"
	"fmt"

	"librarycatalog/internal/book"
	"librarycatalog/internal/config"
	"librarycatalog/internal/database"
)

type storage struct {
	repo  book.Repository
	ping  func(context.Context) error
	close func()
}

// openStorage connects the configured backend and, when AUTO_MIGRATE is set,
// brings its schema up to date.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		conn, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, conn.DB, database.DriverSQLite); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		return &storage{
			repo:  book.NewSQLiteRepo(conn, cfg.DBTimeout),
			ping:  conn.PingContext,
			close: func() { _ = conn.Close() },
		}, nil

	case config.StoragePostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, database.PostgresStdlib(pool), database.DriverPostgres); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &storage{
			repo:  book.NewPostgresRepo(pool, cfg.DBTimeout),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}
