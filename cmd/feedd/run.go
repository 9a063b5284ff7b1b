package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chdown/preload/internal/config"
	"github.com/chdown/preload/internal/service"
)

func addRun(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feed daemon.",
		Example: `
feedd run --config config/feedd.yaml
`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}

	topLevel.AddCommand(cmd)
}

func run(path string) error {
	slog.Info("starting feedd", "config", path, "debug", debug)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	svc, err := service.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create feed service: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Run(ctx) // Always send, even if nil
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr != nil {
			slog.Error("service error", "error", runErr)
		} else {
			slog.Info("service stopped (via MQTT shutdown command)")
		}
	}

	shutdownTimeout := svc.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("feedd stopped successfully")
	return nil
}
