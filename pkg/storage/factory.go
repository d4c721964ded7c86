package storage

import (
	"fmt"

	"github.com/absmach/fedcoord/pkg/storage/badger"
	"github.com/absmach/fedcoord/pkg/storage/file"
	"github.com/absmach/fedcoord/pkg/storage/postgres"
	"github.com/absmach/fedcoord/pkg/storage/sqlite"
)

const (
	Memory   = "memory"
	File     = "file"
	Badger   = "badger"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

type Config struct {
	Type string `env:"MANAGER_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `env:"MANAGER_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"MANAGER_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"MANAGER_POSTGRES_USER"    envDefault:"fedcoord"`
	PostgresPass    string `env:"MANAGER_POSTGRES_PASS"    envDefault:"fedcoord"`
	PostgresDB      string `env:"MANAGER_POSTGRES_DB"      envDefault:"fedcoord"`
	PostgresSSLMode string `env:"MANAGER_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"MANAGER_SQLITE_PATH" envDefault:"./fedcoord.db"`

	BadgerPath string `env:"MANAGER_BADGER_PATH" envDefault:"./data/badger"`

	FileDir string `env:"MANAGER_FILE_DIR" envDefault:"./data/rounds"`
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case Postgres:
		return newPostgresRepositories(cfg)
	case SQLite:
		return newSQLiteRepositories(cfg)
	case Badger:
		return newBadgerRepositories(cfg)
	case File:
		return newFileRepositories(cfg)
	case Memory, "":
		return newMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:     postgres.NewRoundRepository(db),
		Parameters: postgres.NewParameterRepository(db),
		Closer:     db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:     sqlite.NewRoundRepository(db),
		Parameters: sqlite.NewParameterRepository(db),
		Closer:     db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:     badger.NewRoundRepository(db),
		Parameters: badger.NewParameterRepository(db),
		Closer:     db,
	}, nil
}

func newFileRepositories(cfg Config) (*Repositories, error) {
	store, err := file.NewStore(cfg.FileDir)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Rounds:     file.NewRoundRepository(store),
		Parameters: file.NewParameterRepository(store),
	}, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Rounds:     NewMemoryRoundRepository(),
		Parameters: NewMemoryParameterRepository(),
	}
}
