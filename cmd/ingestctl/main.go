package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ingest/internal/config"
	"github.com/example/ingest/internal/logging"
	"github.com/example/ingest/pkg/ingest"
)

var (
	errInsufficientArgs = errors.New("insufficient arguments")
	errPayloadRequired  = errors.New("POST method requires a payload")
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type clientOptions struct {
	configPath  string
	addr        string
	reconnect   bool
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	logLevel    string
	logFile     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "ingestctl METHOD PATH [PAYLOAD]",
		Short: "Send one request to an ingest server",
		Example: `  ingestctl GET /status
  ingestctl POST /data "Hello from client"
  ingestctl GET /shutdown`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			_, err := buildRequest(args)
			if err != nil {
				_ = cmd.Usage()
			}
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, _ := buildRequest(args)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, opts)

			return run(cmd.Context(), cfg, req, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	flags.StringVarP(&opts.addr, "addr", "a", "", "Server address host:port (default 127.0.0.1:8080)")
	flags.BoolVar(&opts.reconnect, "reconnect", true, "Reconnect on transport failure")
	flags.IntVar(&opts.maxAttempts, "max-attempts", 0, "Maximum reconnect attempts")
	flags.DurationVar(&opts.baseDelay, "reconnect-delay", 0, "Reconnect delay unit; attempt N waits N units")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Connect timeout")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: info, debug1, debug2, debug3")
	flags.StringVar(&opts.logFile, "log-file", "", "Append-only log file")

	return cmd
}

// buildRequest проверяет аргументы METHOD PATH [PAYLOAD].
func buildRequest(args []string) (ingest.Request, error) {
	if len(args) < 2 {
		return ingest.Request{}, errInsufficientArgs
	}

	req := ingest.Request{
		Method: ingest.ParseMethod(args[0]),
		Path:   args[1],
	}
	if len(args) >= 3 {
		req.Payload = args[2]
	}

	if req.Method == ingest.MethodUnknown {
		return ingest.Request{}, fmt.Errorf("unknown method '%s'", args[0])
	}
	if req.Method == ingest.MethodPost && req.Payload == "" {
		return ingest.Request{}, errPayloadRequired
	}
	return req, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts clientOptions) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Client.Addr = opts.addr
	}
	if flags.Changed("reconnect") {
		cfg.Client.ReconnectEnabled = opts.reconnect
	}
	if flags.Changed("max-attempts") {
		cfg.Client.MaxReconnectAttempts = opts.maxAttempts
	}
	if flags.Changed("reconnect-delay") {
		cfg.Client.ReconnectBaseDelay = opts.baseDelay
	}
	if flags.Changed("timeout") {
		cfg.Client.ConnectTimeout = opts.timeout
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
}

func run(ctx context.Context, cfg *config.Config, req ingest.Request, stdout, stderr io.Writer) error {
	logger, closer, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	client := ingest.NewClient(cfg.Client.Addr, ingest.ClientConfig{
		ConnectTimeout:       cfg.Client.ConnectTimeout,
		ReadTimeout:          cfg.Client.ReadTimeout,
		WriteTimeout:         cfg.Client.WriteTimeout,
		ReconnectEnabled:     cfg.Client.ReconnectEnabled,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Client.ReconnectBaseDelay,
		Logger:               logger,
		LogLevel:             cfg.LogLevel(),
	})

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer client.Disconnect()

	response, err := client.SendRequest(ctx, req.Method, req.Path, req.Payload)
	if err != nil {
		return fmt.Errorf("failed to receive response from server: %w", err)
	}

	fmt.Fprintln(stdout, response)
	return nil
}
