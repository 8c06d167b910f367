package database

import (
	"context"
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultPostgresDSN = "host=localhost port=5432 user=sat_user password=sat_password dbname=sat_prep sslmode=disable"
	defaultSQLiteDSN   = "file:satprep.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
)

// Connect opens and pings a database for the given driver. An empty dsn
// selects the local development default.
func Connect(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			dsn = defaultPostgresDSN
		}
	case DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
	default:
		return nil, errors.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	return db, nil
}

// Migrate applies the embedded migrations. It is a no-op when the schema is
// already current.
func Migrate(db *sql.DB, driver Driver) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}

	var target database.Driver
	switch driver {
	case DriverPostgres:
		target, err = postgres.WithInstance(db, &postgres.Config{})
	case DriverSQLite:
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return errors.Errorf("unsupported driver: %s", driver)
	}
	if err != nil {
		return errors.Wrapf(err, "%s migrate driver", driver)
	}

	// m.Close is not called: it would close db, which the caller owns.
	m, err := migrate.NewWithInstance("iofs", src, string(driver), target)
	if err != nil {
		return errors.Wrap(err, "init migrate")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "read schema version")
	}
	if dirty {
		return errors.Errorf("schema version %d is dirty", version)
	}
	glog.Infof("database schema at version %d (%s)", version, driver)
	return nil
}
