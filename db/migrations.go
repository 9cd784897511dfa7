// Package db holds the versioned SQL migrations for every supported storage driver.
package db

import "embed"

// Migrations contains migrations/postgres and migrations/sqlite.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var Migrations embed.FS
