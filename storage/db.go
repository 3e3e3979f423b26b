package storage

import (
	"embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations
var migrations embed.FS

// Open connects to the database and brings its schema up to date.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = fmt.Sprintf("%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between pool connections
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate applies all pending migrations for the driver of db.
func Migrate(db *sqlx.DB) error {
	var (
		instance database.Driver
		name     string
		err      error
	)
	switch db.DriverName() {
	case DriverPostgres:
		name = "postgres"
		instance, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case DriverSQLite:
		name = "sqlite"
		instance, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("error creating %s instance for migration: %w", name, err)
	}

	src, err := iofs.New(migrations, "migrations/"+name)
	if err != nil {
		return fmt.Errorf("error creating migrations source: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", src, name, instance)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating: %w", err)
	}

	return nil
}

func placeholders(db *sqlx.DB) sq.StatementBuilderType {
	if db.DriverName() == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}
