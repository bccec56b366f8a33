package logstore

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sensormesh/fabric/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

// Migrate brings the database schema up to the latest embedded migration
// for driver, creating the schema from scratch on an empty database.
func Migrate(driver, dsn string) error {
	var d, err = iofs.New(migrationFiles, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("logstore: load migrations: %w", err)
	}

	var m *migrate.Migrate
	switch driver {
	case "sqlite3":
		m, err = migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite3://%s?_foreign_keys=on", dsn))
	case "mysql":
		m, err = migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("mysql://%s?multiStatements=true", dsn))
	default:
		return fmt.Errorf("logstore: unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("logstore: prepare migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("logstore: migrate up: %w", err)
	}
	log.Infof("logstore: schema up to date (%s)", driver)
	return nil
}
