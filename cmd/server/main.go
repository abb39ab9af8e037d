package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse flags
	flags := pflag.NewFlagSet("nexus", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before the environment is read")
	port := flags.StringP("port", "p", "", "Server port (overrides PORT)")
	host := flags.String("host", "", "Listen address (overrides HOST)")
	nodes := flags.StringP("nodes", "n", "", "Node inventory file, .yaml or .toml (overrides NODES_FILE)")
	captures := flags.String("captures", "", "Capture artifact directory (overrides CAPTURE_DIR)")
	dev := flags.Bool("dev", false, "Development logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	applyFlags(cfg, flags, *port, *host, *nodes, *captures, *dev)

	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return 1
	}
	srv.Start(ctx)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
			exitCode = 1
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		exitCode = 1
	}
	return exitCode
}

// applyFlags lets explicitly set flags override the environment
func applyFlags(cfg *config.Config, flags *pflag.FlagSet, port, host, nodes, captures string, dev bool) {
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("nodes") {
		cfg.Catalog.NodesFile = nodes
	}
	if flags.Changed("captures") {
		cfg.Catalog.CaptureDir = captures
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = dev
		if dev {
			cfg.Logging.Level = "debug"
		}
	}
}
