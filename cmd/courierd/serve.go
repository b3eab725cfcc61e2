package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couriermq/courier/internal/broker"
	"github.com/couriermq/courier/internal/logging"
	"github.com/couriermq/courier/internal/webhook"
)

func serveCmd() *cobra.Command {
	var (
		configPath  string
		host        string
		port        int
		webhookPort int
		metricsPort int
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker until interrupted",
		Long: `Run the broker until interrupted.

Configuration comes from the TOML file named with --config; flags override
file values. --webhook-port starts the HTTP ingestion endpoint next to the
socket listener and --metrics-port exposes Prometheus metrics.

Examples:
  courierd serve --port 4150
  courierd serve --config courier.toml --metrics-port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, host, port, webhookPort, metricsPort, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Interface to bind")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Socket listener port (0 picks an ephemeral port)")
	cmd.Flags().IntVar(&webhookPort, "webhook-port", 0, "Webhook HTTP port (enables the webhook)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Prometheus metrics port (enables metrics)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")

	return cmd
}

func runServe(configPath, host string, port, webhookPort, metricsPort int, logLevel string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	if webhookPort > 0 {
		cfg.WebhookEnabled = true
		cfg.WebhookPort = webhookPort
	}
	if metricsPort > 0 {
		cfg.MetricsEnabled = true
		cfg.MetricsPort = metricsPort
	}
	// A broker stopped by signal is shutting down on purpose, not failing.
	cfg.SuppressCancellationError = true

	logger := logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.NewBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Dispose()

	if addr := b.Addr(); addr != nil {
		fmt.Printf("courierd listening on %s\n", addr.HostPort())
	}
	if hook := b.WebhookAddr(); hook != nil {
		fmt.Printf("webhook accepting frames on http://%s%s\n", hook.HostPort(), webhook.DefaultPath)
	}

	<-ctx.Done()
	fmt.Println("shutting down")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
