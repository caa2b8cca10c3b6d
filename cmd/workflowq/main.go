package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RezaEskandarii/workflowq/app"
	"github.com/RezaEskandarii/workflowq/internal/logging"
	"github.com/RezaEskandarii/workflowq/types/config"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer container.Close()

	if err := container.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := container.EnsureAdmin(ctx); err != nil {
		return err
	}
	if cfg.HTTP.TriggerSecret == "" {
		logger.Warn("TRIGGER_SECRET is empty, trigger and enqueue endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           container.HTTPServer().Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// the trigger route runs a whole processing tick
		WriteTimeout: cfg.ProcessingBudget + 30*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", srv.Addr, "instance", cfg.Instance, "storage", cfg.StorageDriver.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return container.Maintenance.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("workflowq stopped with error", "err", err)
		return err
	}
	logger.Info("workflowq shutdown complete")
	return nil
}
