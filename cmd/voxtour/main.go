package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/voxtour/voxtour-go/internal/app"
	"github.com/voxtour/voxtour-go/internal/config"
)

// @title VoxTour API
// @version 1.0
// @description Coordination server for live guided audio tours.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
	}
}
