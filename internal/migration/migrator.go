// Package migration applies the ledger's embedded sqlite schema using
// golang-migrate. Grounded on the teacher's internal/migration/migrator.go,
// trimmed to sqlite only — the ledger is an explicitly single-host local
// store (spec §1 Non-goals), so the postgres/mysql driver pair the teacher
// wires for its own multi-tenant database has no SPEC_FULL.md component to
// serve (see DESIGN.md).
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Migrate applies every pending migration against the sqlite file at path.
// It opens its own short-lived cgo sql.DB handle distinct from the GORM
// connection the ledger's hot path uses — migration tooling is the one
// place a cgo dependency (mattn/go-sqlite3) is acceptable, since it never
// runs on the request path.
func Migrate(path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite3 migrate driver: %w", err)
	}

	source, err := iofs.New(sqliteFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("ledger schema migrated", zap.String("path", path))
	return nil
}
