package sqlite

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrMigration    = errors.New("database migration error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_rounds",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS rounds (
						round INTEGER PRIMARY KEY,
						attempts INTEGER NOT NULL DEFAULT 1,
						fit TEXT NOT NULL,
						evaluate TEXT,
						fit_metrics TEXT,
						loss REAL,
						metrics TEXT,
						timestamp TIMESTAMP NOT NULL,
						duration INTEGER NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS parameters (
						round INTEGER PRIMARY KEY,
						tensors BLOB NOT NULL,
						created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS parameters`,
					`DROP TABLE IF EXISTS rounds`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}

func createError(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return pkgerrors.ErrEntityExists
	}

	return fmt.Errorf("%w: %w", ErrCreate, err)
}
