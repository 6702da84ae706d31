package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrate applies the embedded SQLite migrations on the live handle.
// The migrate instance is not closed: its sqlite3 driver would close db.DB.
func (db *DB) migrate() error {
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	return db.runMigrations(driver, DriverSQLite)
}

// migratePostgres uses a dedicated pool because the postgres driver pins a
// connection for the lifetime of the migrate instance.
func (db *DB) migratePostgres(table string) error {
	conn, err := sql.Open("postgres", db.dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer conn.Close()

	driver, err := migratepg.WithInstance(conn, &migratepg.Config{MigrationsTable: table})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	defer driver.Close()

	return db.runMigrations(driver, DriverPostgres)
}

func (db *DB) runMigrations(driver migratedb.Driver, name string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+name)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	db.logger.Debug().Uint("schema_version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}
