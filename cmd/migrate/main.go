package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/liveness/internal/config"
	"github.com/saturnino-fabrica-de-software/liveness/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	action := flag.String("action", "up", "Migration action: up, down, version, force")
	version := flag.Int("version", 0, "Target version (for force action)")
	dbName := flag.String("db", "liveness", "Database name recorded by the migrator")
	flag.Parse()

	// Only DATABASE_URL is needed here; the full config would also demand API keys
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	logger := config.NewLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

	db, err := database.OpenSQL(context.Background(), dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger.Info("connected to database")

	migrator, err := database.NewMigrator(db, *dbName, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		logger.Info("running migrations")
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		logger.Info("rolling back last migration")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migration rolled back")

	case "version":
		current, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current migration version",
			slog.Uint64("version", uint64(current)),
			slog.Bool("dirty", dirty),
		)

	case "force":
		if *version == 0 {
			return fmt.Errorf("version flag is required for force action")
		}
		logger.Warn("forcing migration version", slog.Int("version", *version))
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	return nil
}
