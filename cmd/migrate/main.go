// Command migrate manages the Postgres identity store schema.
//
//	migrate up | down | status | version | redo | up-to N | down-to N
//
// DATABASE_URL selects the database; the server applies "up" on its own
// at startup, so this is for inspection and rollbacks.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/DogukanGun/XReplyAgent/internal/config"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/migrations"
)

func main() {
	logger := logging.New("info", "text")

	if len(os.Args) < 2 {
		logger.Error("usage: migrate <up|down|status|version|redo|up-to N|down-to N>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.DatabaseURL, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("migration failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("migration finished", "command", os.Args[1])
}

func run(ctx context.Context, dsn, command string, args []string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return migrations.Run(ctx, command, db, args...)
}
