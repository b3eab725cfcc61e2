package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/broker"
	"github.com/couriermq/courier/internal/config"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/jsoncodec"
	"github.com/couriermq/courier/internal/logging"
)

func sendCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		topic      string
		headers    []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "Publish one message to a broker and exit",
		Long: `Publish one message and exit. The payload comes from the argument, or
from stdin when no argument is given. With --json the payload is decoded
before publishing so it travels as a structured value instead of a string.

Crypto settings must match the broker's; point --config at the same TOML
file to reuse them.

Examples:
  courierd send --port 4150 --topic orders "restock item 7"
  cat order.json | courierd send --config courier.toml --topic orders --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(configPath, host, port, topic, headers, asJSON, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Broker host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Broker port")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to publish to")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Message header as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Decode the payload as JSON before publishing")
	cmd.MarkFlagRequired("topic")

	return cmd
}

func runSend(configPath, host string, port int, topic string, headers []string, asJSON bool, args []string) error {
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
	if cfg.Host == "" {
		cfg.Host = config.DefaultHost
	}
	if cfg.Port == 0 {
		return errspkg.New(errspkg.KindInvalidArgument, "courierd.send", "broker port is required")
	}

	payload, err := readPayload(args, asJSON)
	if err != nil {
		return err
	}
	headerMap, err := parseHeaders(headers)
	if err != nil {
		return err
	}

	family := address.IPv4
	if strings.Contains(cfg.Host, ":") {
		family = address.IPv6
	}
	target := &address.Address{Host: cfg.Host, Port: uint16(cfg.Port), Family: family}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
	pub, err := broker.NewPublisher(ctx, target, cfg, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.Publish(ctx, topic, payload, headerMap); err != nil {
		return err
	}
	// Close drops queued frames, so make sure this one reached the wire.
	if err := pub.Flush(ctx); err != nil {
		return err
	}
	if err := pub.Err(); err != nil {
		return err
	}

	fmt.Printf("published to %s\n", topic)
	return nil
}

// readPayload takes the message body from the lone positional argument, or
// from stdin when none is given. A single trailing newline is trimmed from
// stdin input so shell pipelines behave as expected.
func readPayload(args []string, asJSON bool) (any, error) {
	var raw []byte
	if len(args) == 1 {
		raw = []byte(args[0])
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errspkg.Normalize("courierd.send", err)
		}
		raw = data
		if n := len(raw); n > 0 && raw[n-1] == '\n' {
			raw = raw[:n-1]
			if n := len(raw); n > 0 && raw[n-1] == '\r' {
				raw = raw[:n-1]
			}
		}
	}

	if asJSON {
		var decoded any
		if err := jsoncodec.Unmarshal(raw, &decoded); err != nil {
			return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "courierd.send", err)
		}
		return decoded, nil
	}
	return string(raw), nil
}

func parseHeaders(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "courierd.send", "header %q is not key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
