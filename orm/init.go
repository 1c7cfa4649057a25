package orm

import (
	"errors"
	"fmt"
	"package-registry/config"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"

	"gorm.io/gorm/logger"

	"gorm.io/gorm"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// DB is the explicit store handle passed to every component
type DB struct {
	dbGorm *gorm.DB
}

// InitDB opens the configured database. It does not migrate.
func InitDB(cfg config.DatabaseConfig) (*DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)

		dsnRedacted := dsn
		if cfg.Password != "" {
			dsnRedacted = strings.ReplaceAll(dsn, cfg.Password, "*****")
		}
		log.Debug().
			Msgf("Connecting to postgres using the following information: %s", dsnRedacted)

		dialector = postgres.Open(dsn)
	case "sqlite":
		log.Debug().Str("path", cfg.Path).Msg("Opening sqlite database")

		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	dbGorm, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, &StorageError{Inner: fmt.Errorf("connect to database: %w", err)}
	}

	log.Debug().Str("driver", cfg.Driver).Msg("Successfully connected to the database")

	return &DB{dbGorm: dbGorm}, nil
}

// SQLiteDSN enables foreign keys (needed for the cascade rules), waits on
// locks instead of failing and takes the write lock when a transaction begins
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// Migrate creates or updates every table, index and foreign key
func (db *DB) Migrate() error {
	if err := db.dbGorm.AutoMigrate(models()...); err != nil {
		return &StorageError{Inner: fmt.Errorf("migrate database: %w", err)}
	}

	log.Debug().Msg("Database schema is up to date")

	return nil
}

// Ping checks that the database is reachable
func (db *DB) Ping() error {
	sqlDB, err := db.dbGorm.DB()
	if err != nil {
		return &StorageError{Inner: err}
	}

	if err := sqlDB.Ping(); err != nil {
		return &StorageError{Inner: fmt.Errorf("ping database: %w", err)}
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.dbGorm.DB()
	if err != nil {
		return &StorageError{Inner: err}
	}

	if err := sqlDB.Close(); err != nil {
		return &StorageError{Inner: fmt.Errorf("close database: %w", err)}
	}

	return nil
}
