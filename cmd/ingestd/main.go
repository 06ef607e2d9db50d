package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/example/ingest/internal/admin"
	"github.com/example/ingest/internal/config"
	"github.com/example/ingest/internal/logging"
	"github.com/example/ingest/pkg/ingest"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ingestd",
		Short:         "TCP ingestion server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := serveCmd()
	rootCmd.AddCommand(serve, versionCmd())
	// Без подкоманды запускаем сервер
	rootCmd.RunE = serve.RunE
	rootCmd.Flags().AddFlagSet(serve.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type serveOptions struct {
	configPath string
	addr       string
	adminAddr  string
	logLevel   string
	logFile    string
	maxConn    int
	shutdown   time.Duration
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	flags.StringVar(&opts.addr, "addr", "", "Address to listen on (default :8080)")
	flags.StringVar(&opts.adminAddr, "admin-addr", "", "Admin HTTP address for /metrics, /healthz, /records (empty = disabled)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: info, debug1, debug2, debug3")
	flags.StringVar(&opts.logFile, "log-file", "", "Append-only log file")
	flags.IntVar(&opts.maxConn, "max-conn", 0, "Maximum number of concurrent connections (0 = unlimited)")
	flags.DurationVar(&opts.shutdown, "shutdown-timeout", 0, "Graceful shutdown timeout")

	return cmd
}

// applyFlags переносит явно заданные флаги поверх конфигурации.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if flags.Changed("admin-addr") {
		cfg.Admin.Addr = opts.adminAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("max-conn") {
		cfg.Server.MaxConnections = opts.maxConn
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Server.GracefulTimeout = opts.shutdown
	}
}

func run(parent context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ingest.NewMetrics(ingest.WithRegistry(registry))

	level := cfg.LogLevel()
	store := ingest.NewStore(logger, level)

	server := ingest.NewServer(cfg.Server.Addr, ingest.Config{
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		Store:          store,
		Metrics:        metrics,
		Logger:         logger,
		LogLevel:       level,
	})
	server.SetGracefulTimeout(cfg.Server.GracefulTimeout)

	// SIGINT/SIGTERM отменяют контекст, сервер останавливается сам
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting ingest TCP server",
		"address", cfg.Server.Addr,
		"max_connections", cfg.Server.MaxConnections,
		"shutdown_timeout", cfg.Server.GracefulTimeout,
		"log_level", level.String(),
		"version", version)

	done, err := server.Start(ctx)
	if err != nil {
		logger.Error("Failed to start server", "error", err)
		return err
	}

	var adminSrv *admin.Server
	if cfg.Admin.Addr != "" {
		adminSrv = admin.New(cfg.Admin.Addr, store, server, registry, logger)
		if err := adminSrv.Start(); err != nil {
			logger.Error("Failed to start admin server", "error", err)
			_ = server.Stop()
			<-done
			return err
		}
	}

	<-done

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Admin server shutdown error", "error", err)
		}
	}

	logger.Info("Server stopped successfully", "records", store.Count())
	return nil
}
