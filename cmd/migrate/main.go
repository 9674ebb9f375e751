package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tourneyhub/economy/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	dir := flag.String("dir", "", "migrations directory (default: nearest db/migrations)")
	down := flag.Int("down", 0, "roll back this many steps instead of migrating up")
	flag.Parse()

	if err := run(*dir, *down, logger); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(dir string, down int, logger *slog.Logger) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if down > 0 {
		return infra.RollbackMigrations(cfg.DSN(), dir, down, logger)
	}
	return infra.RunMigrations(cfg.DSN(), dir, logger)
}
