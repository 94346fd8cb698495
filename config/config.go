package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures runtime configuration for the payments daemon.
type Config struct {
	ListenAddress         string          `toml:"ListenAddress"`
	Environment           string          `toml:"Environment"`
	DatabaseURL           string          `toml:"DatabaseURL"`
	DatabasePath          string          `toml:"DatabasePath"`
	DeliveryLogPath       string          `toml:"DeliveryLogPath"`
	PaymobHMACSecret      string          `toml:"PaymobHMACSecret"`
	PaymobHMACSecretEnv   string          `toml:"PaymobHMACSecretEnv"`
	CallbackRatePerMinute float64         `toml:"CallbackRatePerMinute"`
	CallbackBurst         int             `toml:"CallbackBurst"`
	Telemetry             TelemetryConfig `toml:"Telemetry"`
}

// TelemetryConfig controls the optional OTLP exporters.
type TelemetryConfig struct {
	Enable   bool   `toml:"Enable"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

func defaults() *Config {
	return &Config{
		ListenAddress:         ":8090",
		Environment:           "dev",
		DatabasePath:          "paymentsd.db",
		DeliveryLogPath:       "paymob-deliveries.db",
		CallbackRatePerMinute: 120,
		CallbackBurst:         30,
	}
}

// Load reads configuration from the given TOML file and resolves the shared
// HMAC secret. A missing file falls back to defaults so that env-only
// deployments work; a missing secret is a hard startup error because no
// verification can ever succeed without it.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8090"
	}
	cfg.DeliveryLogPath = strings.TrimSpace(cfg.DeliveryLogPath)
	if cfg.DeliveryLogPath == "" {
		cfg.DeliveryLogPath = "paymob-deliveries.db"
	}
	if cfg.CallbackRatePerMinute <= 0 {
		cfg.CallbackRatePerMinute = 120
	}
	if cfg.CallbackBurst <= 0 {
		cfg.CallbackBurst = 30
	}

	cfg.PaymobHMACSecret = strings.TrimSpace(cfg.PaymobHMACSecret)
	cfg.PaymobHMACSecretEnv = strings.TrimSpace(cfg.PaymobHMACSecretEnv)
	if cfg.PaymobHMACSecret == "" && cfg.PaymobHMACSecretEnv != "" {
		cfg.PaymobHMACSecret = strings.TrimSpace(os.Getenv(cfg.PaymobHMACSecretEnv))
		if cfg.PaymobHMACSecret == "" {
			return nil, fmt.Errorf("PaymobHMACSecretEnv %s is empty", cfg.PaymobHMACSecretEnv)
		}
	}
	if cfg.PaymobHMACSecret == "" {
		return nil, fmt.Errorf("paymob hmac secret required (set PaymobHMACSecret or PaymobHMACSecretEnv)")
	}

	return cfg, nil
}
