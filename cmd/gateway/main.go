package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/config"
	"github.com/fahdr/ecomm-sub005/internal/httpapi"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.ConfigureLogging(cfg.Logging.Level, cfg.Logging.Format)
	logger := utils.NewLogger("gateway")

	// Connect backing services and start background workers
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := httpapi.NewDependencies(startCtx, cfg)
	startCancel()
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}

	// Create HTTP server. Writes may span several provider attempts.
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("LLM gateway listening", "addr", addr, "providers", len(deps.Registry.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Drain the ledger queue and flush archives before closing storage
	if err := deps.Close(ctx); err != nil {
		logger.Error("Failed to release dependencies", "error", err)
	}

	logger.Info("Server exited")
}
