package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/server"
)

func main() {
	// Flags override environment configuration
	port := flag.String("port", "", "Server port (overrides PORT)")
	scripts := flag.String("scripts", "", "Realm script glob (overrides REALM_SCRIPTS)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Fatal("Invalid configuration", zap.Error(err))
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *scripts != "" {
		cfg.Realm.Scripts = *scripts
	}
	if *dev {
		cfg.Logging.Development = true
	}

	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}
