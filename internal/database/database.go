// Package database holds the gorm-backed stores shared by the services.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"labreserve/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver          string
	DSN             string // postgres
	Path            string // sqlite
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps gorm.DB with the per-facility reservation lock.
type DB struct {
	*gorm.DB
	driver string

	facilityLocks sync.Map // int64 -> *sync.Mutex, sqlite only
}

// Open connects to the configured database. Schema changes are left to
// Migrate.
func Open(opts Options, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gcfg := &gorm.Config{Logger: NewGormLogger(logger, 200*time.Millisecond)}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(opts.Path))
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  opts.DSN,
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	if driver == DriverSQLite {
		// One writer; the per-facility mutex orders reservations on top.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	return &DB{DB: gdb, driver: driver}, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
}

// Driver reports the dialect in use.
func (db *DB) Driver() string {
	return db.driver
}

// Migrate creates or updates every table.
func (db *DB) Migrate(ctx context.Context) error {
	err := db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.Campus{},
		&model.Facility{},
		&model.Resource{},
		&model.Loan{},
		&model.WeeklyRule{},
		&model.DateException{},
		&model.Booking{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the connection for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// inFacilityTx runs fn in a transaction that holds the facility's
// reservation lock: a transaction-scoped advisory lock on postgres, an
// in-process mutex taken before BEGIN on sqlite.
func (db *DB) inFacilityTx(ctx context.Context, facilityID int64, fn func(tx *gorm.DB) error) error {
	if db.driver != DriverPostgres {
		v, _ := db.facilityLocks.LoadOrStore(facilityID, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if db.driver == DriverPostgres {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", facilityID).Error; err != nil {
				return fmt.Errorf("lock facility %d: %w", facilityID, err)
			}
		}
		return fn(tx)
	})
}
