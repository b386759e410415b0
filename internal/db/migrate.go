package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/migrations"
)

// Migrate runs all pending goose migrations from the embedded FS.
func Migrate(db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations.FS)

	dialect := driver
	if driver == "sqlite" {
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
