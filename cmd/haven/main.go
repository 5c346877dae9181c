package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/havenlabs/haven/internal/telemetry"
	"github.com/havenlabs/haven/pkg/assistant"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("haven", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.Any("error", err))
		}
	}()

	configPath := os.Getenv("HAVEN_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	a, err := assistant.New(
		assistant.WithConfigFile(configPath),
		assistant.WithLogger(logger),
		assistant.WithFastGenerator(newLocalGenerator()),
		assistant.WithDeepGenerator(newReflectiveGenerator()),
	)
	if err != nil {
		log.Fatalf("Failed to create assistant: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		log.Fatalf("Failed to start assistant: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping assistant")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("assistant shutdown complete")
}
