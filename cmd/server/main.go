package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logging.FromEnv())
	slog.SetDefault(logger)

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	if err := server.Run(ctx, server.Config{
		Port:          port,
		SessionIdle:   envDuration(logger, "FIELDSTATE_SESSION_IDLE", 30*time.Minute),
		SessionMaxAge: envDuration(logger, "FIELDSTATE_SESSION_MAX_AGE", 24*time.Hour),
		Logger:        logger,
	}); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envDuration(logger *slog.Logger, name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("ignoring invalid duration", "name", name, "value", v, "error", err)
		return def
	}
	return d
}
