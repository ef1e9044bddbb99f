package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/omarbridgetech/AlertHub/internal/config"
	"github.com/omarbridgetech/AlertHub/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, steps, version, force")
	version := flag.Int("version", 0, "Target version (for force action)")
	steps := flag.Int("steps", 0, "Migrations to apply, negative to roll back (for steps action)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment, cfg.InstanceID)

	connCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, connCfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
		logger.Info("migrations applied")

	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
		logger.Info("last migration rolled back")

	case "steps":
		if *steps == 0 {
			return fmt.Errorf("steps flag is required for steps action")
		}
		if err := migrator.Steps(*steps); err != nil {
			return err
		}
		logger.Info("migration steps applied", slog.Int("steps", *steps))

	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		logger.Info("schema version", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))

	case "force":
		if *version <= 0 {
			return fmt.Errorf("version flag is required for force action")
		}
		if err := migrator.Force(*version); err != nil {
			return err
		}
		logger.Info("schema version forced", slog.Int("version", *version))

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, steps, version, force)", *action)
	}

	return nil
}
