// Package sqlstore is the durable ledger store for webhook transactions,
// backed by SQLite (default) or PostgreSQL through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"settld/migrations"
	"settld/pkg/config"
	"settld/pkg/errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDefaultParams keeps SQLite writes durable and lets concurrent
// readers wait on the writer instead of failing with SQLITE_BUSY.
const sqliteDefaultParams = "_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"

// Options describes how to reach the ledger database.
type Options struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OptionsFromConfig maps the service database config onto store options.
func OptionsFromConfig(cfg config.DatabaseConfig) Options {
	return Options{
		Driver:          cfg.Driver,
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

// Connect opens and pings the database described by opts.
func Connect(ctx context.Context, opts Options) (*sqlx.DB, error) {
	dsn, err := dataSourceName(opts.Driver, opts.URL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, opts.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if opts.Driver == config.DriverSQLite {
		// SQLite has a single writer; one connection serializes every statement.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return db, nil
}

// NewMigrator builds a migrate instance over the embedded schema for driver.
// The migrator owns its own connection; closing it leaves other pools intact.
func NewMigrator(driver, url string) (*migrate.Migrate, error) {
	dsn, err := dataSourceName(driver, url)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open migration connection")
	}

	var dbDriver database.Driver
	switch driver {
	case config.DriverPostgres:
		dbDriver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	case config.DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create migration driver")
	}

	src, err := iofs.New(migrations.FS, driver)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to load embedded migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	return m, nil
}

// Migrate applies all pending migrations.
func Migrate(driver, url string) error {
	m, err := NewMigrator(driver, url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

func dataSourceName(driver, url string) (string, error) {
	switch driver {
	case config.DriverPostgres:
		return url, nil
	case config.DriverSQLite:
		if strings.Contains(url, "?") {
			return url, nil
		}
		return url + "?" + sqliteDefaultParams, nil
	default:
		return "", errors.Wrap(errors.ErrUnsupportedDriver, driver)
	}
}
