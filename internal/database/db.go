package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"classbook/internal/config"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the relational store shared by every repository.
type DB struct {
	*sql.DB
	driver string
	dsn    string
	path   string
	logger *zerolog.Logger
}

// Open connects to the configured driver and applies pending migrations.
func Open(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		db, err := NewDB(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverPostgres:
		return openPostgres(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewDB opens (or creates) a SQLite database at path. ":memory:" is
// supported and pinned to a single connection.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if !inMemory {
		dsn += "&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: DriverSQLite, dsn: dsn, path: path, logger: logger}
	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("driver", DriverSQLite).Str("path", path).Msg("database initialized")
	return db, nil
}

func openPostgres(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dsn := cfg.Postgres.DSN()
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: DriverPostgres, dsn: dsn, logger: logger}
	if err := db.migratePostgres(cfg.Postgres.MigrationTable); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("driver", DriverPostgres).Str("host", cfg.Postgres.Host).Str("dbname", cfg.Postgres.DBName).
		Msg("database initialized")
	return db, nil
}

// Driver returns the active driver name.
func (db *DB) Driver() string { return db.driver }

// Path returns the SQLite file path; empty for PostgreSQL.
func (db *DB) Path() string { return db.path }

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	return rebind(db.driver, query)
}

func rebind(driver, query string) string {
	if driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// insertReturningID runs an INSERT and returns the new row id. ok is false
// when the statement inserted nothing (INSERT ... SELECT with an empty set).
func insertReturningID(ctx context.Context, q execQuerier, driver, query string, args ...interface{}) (id int64, ok bool, err error) {
	if driver == DriverPostgres {
		err = q.QueryRowContext(ctx, rebind(driver, query)+" RETURNING id", args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// isUniqueViolation reports whether err is a unique/primary key conflict.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23514"
	}
	return false
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
