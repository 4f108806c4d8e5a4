// Package config loads the service configuration: a yaml file describing
// the driver fleet, overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StreamConfig declares one websocket driver instance.
type StreamConfig struct {
	Exchange string   `yaml:"exchange"`
	Venue    string   `yaml:"venue"` // spot | perp
	Symbols  []string `yaml:"symbols"`
}

// PollConfig declares one REST poll driver instance.
type PollConfig struct {
	Source          string `yaml:"source"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Config is the full service configuration.
type Config struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	Streams []StreamConfig `yaml:"streams"`
	Polls   []PollConfig   `yaml:"polls"`

	// Env-only settings.
	SoSoValueAPIKey string `yaml:"-"`
	RedisAddr       string `yaml:"-"`
}

// Default returns the built-in driver fleet used when no config file is
// present.
func Default() *Config {
	majors := []string{"BTC", "ETH", "SOL"}
	usdt := func(suffix string) []string {
		out := make([]string, 0, len(majors))
		for _, c := range majors {
			out = append(out, c+suffix)
		}
		return out
	}
	return &Config{
		Port:    3001,
		DataDir: "data",
		Streams: []StreamConfig{
			{Exchange: "binance", Venue: "spot", Symbols: usdt("USDT")},
			{Exchange: "binance", Venue: "perp", Symbols: usdt("USDT")},
			{Exchange: "bybit", Venue: "spot", Symbols: usdt("USDT")},
			{Exchange: "bybit", Venue: "perp", Symbols: usdt("USDT")},
			{Exchange: "okx", Venue: "perp", Symbols: []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP"}},
			{Exchange: "coinbase", Venue: "spot", Symbols: []string{"BTC-USD", "ETH-USD", "SOL-USD"}},
			{Exchange: "kraken", Venue: "spot", Symbols: []string{"XBT/USD", "ETH/USD", "SOL/USD"}},
			{Exchange: "hyperliquid", Venue: "perp", Symbols: majors},
		},
		Polls: []PollConfig{
			{Source: "hyperliquid", IntervalSeconds: 10},
			{Source: "binance", IntervalSeconds: 10},
			{Source: "bybit", IntervalSeconds: 10},
			{Source: "asterdex", IntervalSeconds: 10},
			{Source: "nado", IntervalSeconds: 60},
		},
	}
}

// Load reads the yaml file at path (missing file falls back to Default)
// and applies the environment overlay.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if raw := os.Getenv("PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
		}
		cfg.Port = p
	}
	if raw := os.Getenv("DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	cfg.SoSoValueAPIKey = os.Getenv("SOSOVALUE_API_KEY")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", cfg.Port)
	}
	return cfg, nil
}
