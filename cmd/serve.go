package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/gateway"
	"bookforge-gateway/internal/logger"
	providerfactory "bookforge-gateway/internal/provider/factory"
	"bookforge-gateway/internal/server"
	"bookforge-gateway/internal/tracer"
)

const tracerFlushTimeout = 5 * time.Second

type serveOptions struct {
	configPath   string
	envFile      string
	overridePort int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Example: `  bookforge serve --config configs/config.example.yaml
  bookforge serve --config config.yaml --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to YAML configuration file (required)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with fallback provider keys")
	cmd.Flags().IntVar(&opts.overridePort, "port", 0, "override server port from configuration")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", opts.envFile, err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		if opts.overridePort <= 0 || opts.overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", opts.overridePort)
		}
		cfg.Server.Port = opts.overridePort
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	shutdownTracing, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Enabled:     cfg.Tracing.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry, err := providerfactory.NewRegistry(cfg)
	if err != nil {
		return err
	}

	gw, err := gateway.New(registry, config.NewCredentials(cfg))
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, gw)
	if err != nil {
		return err
	}

	slog.Info("providers registered", "providers", registry.Names())
	return srv.Run(ctx)
}
