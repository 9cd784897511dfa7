// Package database opens the storage backends supported by the catalog and
// applies the embedded schema migrations to them.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"librarycatalog/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const pingTimeout = 2 * time.Second

// OpenPostgres creates a pool for dsn and verifies it answers a ping.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database (%s): %w", RedactDSN(dsn), err)
	}
	slog.Info("database connection OK", "driver", DriverPostgres)
	return pool, nil
}

// OpenSQLite opens the SQLite database at path. ":memory:" gives a private
// in-memory database, which only survives because the pool is pinned to a
// single connection.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	slog.Info("database connection OK", "driver", DriverSQLite, "path", path)
	return conn, nil
}

// PostgresStdlib exposes a pgx pool as *sql.DB for tools that need
// database/sql, such as the migrator.
func PostgresStdlib(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// MigrationsFS returns the migration files for driver.
func MigrationsFS(driver string) (fs.FS, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return fs.Sub(db.Migrations, "migrations/"+driver)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// NewProvider builds a goose provider over the embedded migrations.
// Closing the provider closes conn.
func NewProvider(conn *sql.DB, driver string) (*goose.Provider, error) {
	fsys, err := MigrationsFS(driver)
	if err != nil {
		return nil, err
	}
	dialect := goose.DialectPostgres
	if driver == DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	return goose.NewProvider(dialect, conn, fsys)
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	provider, err := NewProvider(conn, driver)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		slog.Info("migration applied", "driver", driver, "version", res.Source.Version, "duration_ms", res.Duration.Milliseconds())
	}
	return nil
}

// RedactDSN hides the credentials part of a URL style DSN.
func RedactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
