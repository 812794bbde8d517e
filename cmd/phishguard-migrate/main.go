// Package main applies the rule store schema migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/rafaeljc/phishguard/internal/config"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(log, os.Args[1:]); err != nil {
		log.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("phishguard-migrate", flag.ContinueOnError)
	databaseURL := fs.String("database", "", "Database URL (defaults to the PHISHGUARD_DB_* settings)")
	migrationsPath := fs.String("path", "migrations", "Path to migrations directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := "up"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	var forceVersion int
	switch command {
	case "up", "down", "version":
	case "force":
		if fs.NArg() < 2 {
			return errors.New("force requires a version number: phishguard-migrate force <version>")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", fs.Arg(1), err)
		}
		forceVersion = v
	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}

	if *databaseURL == "" {
		db, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		*databaseURL = db.ConnectionString()
	}

	log.Info("connecting to database", slog.String("migrations_path", *migrationsPath))
	m, err := migrate.New("file://"+*migrationsPath, *databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		log.Info("migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("no migration applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read version: %w", err)
		}
		log.Info("current version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	case "force":
		if err := m.Force(forceVersion); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		log.Info("forced version", slog.Int("version", forceVersion))
	}
	return nil
}
