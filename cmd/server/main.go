// Command server runs the eventhub API.
//
// Configuration comes from the environment (and an optional .env file); see
// internal/config for the keys. main only loads config, builds the logger
// and hands both to internal/server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/eventhub/internal/config"
	"github.com/sakif/eventhub/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
