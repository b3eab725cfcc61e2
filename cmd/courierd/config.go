package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/couriermq/courier/internal/config"
)

type fileConfig struct {
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	Backlog           int      `toml:"backlog"`
	MaxMessageSize    int      `toml:"max_message_size"`
	ConnectionTimeout string   `toml:"connection_timeout"`
	HighWaterMark     int      `toml:"high_water_mark"`
	Mask              string   `toml:"mask"`
	EncryptionKey     string   `toml:"encryption_key"`
	Salt              string   `toml:"salt"`
	SignAlgorithm     string   `toml:"sign_algorithm"`
	WebhookEnabled    bool     `toml:"webhook_enabled"`
	WebhookPort       int      `toml:"webhook_port"`
	WebhookOrigins    []string `toml:"webhook_cors_allowed_origins"`
	MetricsEnabled    bool     `toml:"metrics_enabled"`
	MetricsPort       int      `toml:"metrics_port"`
}

// loadConfig reads a TOML file into a Config, touching only the keys the
// file defines so package defaults keep covering the rest. An empty path
// returns the zero config unchanged.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.Config{}, fmt.Errorf("load courier config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("backlog") {
		cfg.Backlog = raw.Backlog
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("connection_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectionTimeout))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse connection_timeout: %w", err)
		}
		cfg.ConnectionTimeout = d
	}
	if meta.IsDefined("high_water_mark") {
		cfg.HighWaterMark = raw.HighWaterMark
	}
	if meta.IsDefined("mask") {
		cfg.Mask = config.Secret(raw.Mask)
	}
	if meta.IsDefined("encryption_key") {
		cfg.EncryptionKey = config.Secret(raw.EncryptionKey)
	}
	if meta.IsDefined("salt") {
		cfg.Salt = config.Secret(raw.Salt)
	}
	if meta.IsDefined("sign_algorithm") {
		cfg.SignAlgorithm = strings.TrimSpace(raw.SignAlgorithm)
	}
	if meta.IsDefined("webhook_enabled") {
		cfg.WebhookEnabled = raw.WebhookEnabled
	}
	if meta.IsDefined("webhook_port") {
		cfg.WebhookPort = raw.WebhookPort
	}
	if meta.IsDefined("webhook_cors_allowed_origins") {
		cfg.WebhookCORSAllowedOrigins = normalizeOrigins(raw.WebhookOrigins)
	}
	if meta.IsDefined("metrics_enabled") {
		cfg.MetricsEnabled = raw.MetricsEnabled
	}
	if meta.IsDefined("metrics_port") {
		cfg.MetricsPort = raw.MetricsPort
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
