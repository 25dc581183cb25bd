// Command migrate manages the daemon's sqlite schema outside of normal
// startup, for inspecting or rolling back migrations by hand.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Sxientrie/reddit-hawk/migrations"
)

const usage = `Usage: migrate [-db path] <up|down|status|version>

  up       apply all pending migrations
  down     roll back the most recent migration
  status   print the state of every known migration
  version  print the current schema version
`

var commands = map[string]func(*sql.DB, string, ...goose.OptionsFunc) error{
	"up":      goose.Up,
	"down":    goose.Down,
	"status":  goose.Status,
	"version": goose.Version,
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/hawk.db"), "path to sqlite database")
	flag.Parse()

	run, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Prepare(); err != nil {
		log.Fatalf("prepare migrations: %v", err)
	}
	if err := run(db, "."); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
