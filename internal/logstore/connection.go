// Package logstore is the durable SQL half of the fabric: it records
// reading errors and affector activation attempts so an operator can query
// what went wrong and when, long after the in-memory bus has moved on.
// Bulk time-series samples live in pkg/series instead -- this store only
// ever holds the comparatively rare, audit-shaped rows.
package logstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sensormesh/fabric/pkg/log"
)

// Store wraps a *sqlx.DB together with the name of the driver it was opened
// with.
type Store struct {
	DB     *sqlx.DB
	driver string
}

// registerSQLiteHooks guards the one-time registration of the hooked sqlite3
// driver; database/sql panics if a driver name is registered twice.
var registerSQLiteHooks sync.Once

// Connect opens a database connection for driver ("sqlite3" or "mysql"),
// applying the same per-driver pool tuning the original repository package
// used: sqlite3 gets a single connection since the driver does not allow
// concurrent writers, mysql gets a small pool with a bounded lifetime.
func Connect(driver, dsn string) (*Store, error) {
	var dbHandle *sqlx.DB
	var err error

	switch driver {
	case "sqlite3":
		registerSQLiteHooks.Do(func() {
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryLogHook{}))
		})
		dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err != nil {
			return nil, fmt.Errorf("logstore: open sqlite3: %w", err)
		}
		dbHandle.SetMaxOpenConns(1)
	case "mysql":
		dbHandle, err = sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true", dsn))
		if err != nil {
			return nil, fmt.Errorf("logstore: open mysql: %w", err)
		}
		dbHandle.SetConnMaxLifetime(3 * time.Minute)
		dbHandle.SetMaxOpenConns(10)
		dbHandle.SetMaxIdleConns(10)
	default:
		return nil, fmt.Errorf("logstore: unsupported driver %q", driver)
	}

	log.Infof("logstore: connected via %s driver", driver)
	return &Store{DB: dbHandle, driver: driver}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}
