// Command export writes every stored booking into an .xlsx workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/database"
	"consultbot/internal/database/postgres"
	"consultbot/internal/domain"
	"consultbot/internal/export"
	"consultbot/internal/logging"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	outDir := flag.String("out", "", "output directory (defaults to exports.path)")
	flag.Parse()

	if *configPath == "" {
		*configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}
	logger := baseLogger.With().Str("component", "export").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	bookings, closeStore, err := openStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer closeStore()

	list, err := bookings.ListBookings(ctx)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}

	dir := *outDir
	if dir == "" {
		dir = cfg.Exports.Path
	}
	path, err := export.SaveBookings(dir, list, time.Now())
	if err != nil {
		return fmt.Errorf("save export: %w", err)
	}

	logger.Info().Str("path", path).Int("bookings", len(list)).Msg("Export written")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.AppointmentStore, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return nil, nil, fmt.Errorf("export needs a persistent database, got driver %q", cfg.Database.Driver)
}
