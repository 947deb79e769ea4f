// Package config loads bookscope settings: YAML file, then .env, then BOOKSCOPE_* overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/bookscope/internal/data/cache"
	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	"github.com/sawpanic/bookscope/internal/execution"
	apihttp "github.com/sawpanic/bookscope/internal/interfaces/http"
	"github.com/sawpanic/bookscope/internal/microstructure"
)

// DefaultPath is read when no --config flag is given; a missing default file is not an error
const DefaultPath = "config/bookscope.yaml"

const envPrefix = "BOOKSCOPE_"

// Config is the complete bookscope configuration
type Config struct {
	LogLevel  string                `yaml:"log_level"`
	Analysis  microstructure.Config `yaml:"analysis"`
	Execution execution.Config      `yaml:"execution"`
	Binance   binance.Config        `yaml:"binance"`
	Cache     cache.Config          `yaml:"cache"`
	Server    apihttp.ServerConfig  `yaml:"server"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		LogLevel:  "info",
		Analysis:  *microstructure.DefaultConfig(),
		Execution: execution.DefaultConfig(),
		Binance:   binance.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Server:    apihttp.DefaultServerConfig(),
	}
}

// Load merges the YAML file at path over the defaults, applies .env and environment
// overrides, and validates the result. An empty path loads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Execution.Validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if err := c.Binance.Validate(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache: redis backend requires redis_addr")
	}
	return c.Server.Validate()
}

// applyEnvOverrides reads BOOKSCOPE_* variables; set variables win over the file
func applyEnvOverrides(cfg *Config) error {
	setters := []func() error{
		setStr(&cfg.LogLevel, "LOG_LEVEL"),

		setStr(&cfg.Binance.SpotBaseURL, "BINANCE_SPOT_BASE_URL"),
		setStr(&cfg.Binance.FuturesBaseURL, "BINANCE_FUTURES_BASE_URL"),
		setStr(&cfg.Binance.SpotStreamURL, "BINANCE_SPOT_STREAM_URL"),
		setStr(&cfg.Binance.FuturesStreamURL, "BINANCE_FUTURES_STREAM_URL"),
		setStr(&cfg.Binance.UserAgent, "BINANCE_USER_AGENT"),
		setInt(&cfg.Binance.MaxRetries, "BINANCE_MAX_RETRIES"),
		setDuration(&cfg.Binance.Timeout, "BINANCE_TIMEOUT"),
		setInt(&cfg.Binance.WeightPerMinute, "BINANCE_WEIGHT_PER_MINUTE"),
		setInt(&cfg.Binance.WeightBurst, "BINANCE_WEIGHT_BURST"),
		setInt(&cfg.Binance.DepthLimit, "BINANCE_DEPTH_LIMIT"),
		setInt(&cfg.Binance.TradesLimit, "BINANCE_TRADES_LIMIT"),

		setStr(&cfg.Cache.Backend, "CACHE_BACKEND"),
		setDuration(&cfg.Cache.TTL, "CACHE_TTL"),
		setStr(&cfg.Cache.RedisAddr, "REDIS_ADDR"),
		setStr(&cfg.Cache.RedisPassword, "REDIS_PASSWORD"),
		setInt(&cfg.Cache.RedisDB, "REDIS_DB"),

		setStr(&cfg.Server.Host, "SERVER_HOST"),
		setInt(&cfg.Server.Port, "SERVER_PORT"),

		setDecimal(&cfg.Execution.OrderTypeThresholdPercent, "ORDER_TYPE_THRESHOLD_PERCENT"),
		setDecimal(&cfg.Execution.MaxSlippagePercent, "MAX_SLIPPAGE_PERCENT"),
		setDecimal(&cfg.Execution.Risk.MaxNotional, "RISK_MAX_NOTIONAL"),
		setDecimal(&cfg.Execution.Risk.MaxLeverage, "RISK_MAX_LEVERAGE"),
	}

	for _, set := range setters {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setStr(dst *string, key string) func() error {
	return func() error {
		if v, ok := lookup(key); ok {
			*dst = v
		}
		return nil
	}
}

func setInt(dst *int, key string) func() error {
	return func() error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration, key string) func() error {
	return func() error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}
}

func setDecimal(dst *decimal.Decimal, key string) func() error {
	return func() error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}
}
