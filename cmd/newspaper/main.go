package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deusflow/newspaper/internal/app"
	"github.com/deusflow/newspaper/internal/config"
	"github.com/deusflow/newspaper/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "path to an HCL config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	var files []string
	if *configFile != "" {
		files = append(files, *configFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogFormat, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start application", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("Server stopped with error", "err", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
