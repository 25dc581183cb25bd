// Package migrations carries the schema for the durable key-value
// store, embedded so the daemon applies it at startup without shipping
// loose SQL files.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var fs embed.FS

// Prepare points goose at the embedded migration files. Callers that
// drive goose directly (the migrate command) call this once up front.
func Prepare() error {
	goose.SetBaseFS(fs)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return nil
}

// Run brings the schema up to the latest version.
func Run(db *sql.DB) error {
	if err := Prepare(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
