package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/fs"
)

const migrationsDir = "migrations"

func init() {
	goose.SetBaseFS(appfs.FS)
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	db, err := sql.Open(core.EnginePostgres, conf.Database.DSN(dbName, admin))
	if err != nil {
		return nil, err
	}
	if conf.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.Database.MaxOpenConns)
		db.SetMaxIdleConns(conf.Database.MaxOpenConns)
	}
	return db, nil
}

func Open(conf *core.Config) (*sql.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sql.DB, query string, args ...interface{}) (bool, error) {
	var ok bool
	err := db.QueryRow("SELECT EXISTS ("+query+")", args...).Scan(&ok)
	return ok, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	ok, err := exists(db, "SELECT 1 FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !ok {
		q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) +
			" CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	ok, err := exists(db, "SELECT 1 FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !ok {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) then the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	return createDB(appDB, conf)
}

// RunMigrations runs a goose command (up, down, status, version, redo, ...) against the embedded migrations.
func RunMigrations(db *sql.DB, command string, args ...string) error {
	if err := goose.SetDialect(core.EnginePostgres); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}

func Migrate(db *sql.DB) error {
	return errors.Wrap(RunMigrations(db, "up"), "migrating database")
}
