package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/device-track/dtc/internal/api"
	"github.com/device-track/dtc/internal/audit"
	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/broadcast"
	"github.com/device-track/dtc/internal/config"
	"github.com/device-track/dtc/internal/ingest"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/ws"
)

const shutdownTimeout = 30 * time.Second

// newLogger creates the process-wide JSON logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the tracking server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracking server",
	Long: `Start the device tracking server.

The server will:
  - Load configuration from the specified YAML file (or dtc.yml)
  - Accept WebSocket clients on /api/v1/ws
  - Accept authenticated HTTP ingest on /api/v1/devices/{id}/location
  - Optionally bridge fixes in from an MQTT broker

The server runs until interrupted (Ctrl+C) or receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info("config loaded",
		"addr", cfg.Server.Addr,
		"authAlgorithm", cfg.Auth.Algorithm,
		"mqttEnabled", cfg.MQTT.Enabled,
	)

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Algorithm:           cfg.Auth.Algorithm,
		SecretKey:           cfg.Auth.SecretKey,
		PublicKeyPEM:        cfg.Auth.PublicKeyPEM,
		JWKSURL:             cfg.Auth.JWKSURL,
		JWKSRefreshInterval: cfg.Auth.JWKSRefreshInterval.Std(),
		JWKSCacheTimeout:    cfg.Auth.JWKSCacheTimeout.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to create credential verifier: %w", err)
	}

	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.NewLogger(cfg.Audit.Dir)
		if err != nil {
			return fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		logger.Info("audit trail enabled", "file", auditLogger.FilePath())
	}

	reg := registry.New(verifier)
	gateway := ws.NewGateway(reg, auditLogger, logger, cfg.Hub)
	router := broadcast.NewRouter(reg, gateway, logger)
	gateway.SetRouter(router)

	var bridge *ingest.Bridge
	if cfg.MQTT.Enabled {
		bridge = ingest.NewBridge(cfg.MQTT, router, logger)
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("failed to start MQTT ingest: %w", err)
		}
	}

	server := api.NewServerWithAuth(router, gateway, reg,
		auth.NewMiddleware(verifier), auditLogger,
		cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std(), cfg.Server.IdleTimeout.Std())

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.Server.Addr)
		if err := server.Start(cfg.Server.Addr); err != nil {
			serverErr <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("http server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if bridge != nil {
		bridge.Stop()
		logger.Info("mqtt ingest stopped")
	}
	if err := server.Stop(ctx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}
	if err := auditLogger.Close(); err != nil {
		logger.Error("failed to close audit logger", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
