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
)

// Applies the order engine schema (products, orders, order_items) to the
// Postgres backing. The Firestore backing is schemaless and needs none of
// this.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	path := flag.String("path", "file://migrations", "migration source URL")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-path <source>] <up|down|version|force <v>>")
		os.Exit(2)
	}

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	m, err := migrate.New(*path, dsn)
	if err != nil {
		logger.Error("failed to open migration source", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	if err := run(m, logger, flag.Args()); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, logger *slog.Logger, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema already current")
				return nil
			}
			return err
		}
		logger.Info("schema migrated up")

	case "down":
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("nothing to roll back")
				return nil
			}
			return err
		}
		logger.Info("rolled back one migration")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("schema is empty, no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("schema version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse version %q: %w", args[1], err)
		}
		if err := m.Force(v); err != nil {
			return err
		}
		logger.Info("schema version forced", "version", v)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
