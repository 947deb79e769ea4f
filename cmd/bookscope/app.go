package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sawpanic/bookscope/internal/application/analysis"
	"github.com/sawpanic/bookscope/internal/config"
	"github.com/sawpanic/bookscope/internal/data/cache"
	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	apihttp "github.com/sawpanic/bookscope/internal/interfaces/http"
)

// app is the wired dependency graph for one command invocation
type app struct {
	cfg     *config.Config
	client  *binance.Client
	metrics *apihttp.MetricsRegistry
	service *analysis.Service
	cache   cache.Cache
	out     io.Writer
	json    bool
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel == "" {
		level, _ := zerolog.ParseLevel(cfg.LogLevel)
		zerolog.SetGlobalLevel(level)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	responseCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	metrics := apihttp.NewMetricsRegistry()
	client := binance.NewClient(cfg.Binance,
		binance.WithCache(responseCache, cfg.Cache.TTL),
		binance.WithObserver(metrics),
	)
	service := analysis.NewService(client, &cfg.Analysis, cfg.Execution,
		analysis.Options{DepthLimit: cfg.Binance.DepthLimit, TradesLimit: cfg.Binance.TradesLimit}, metrics)

	log.Debug().Str("cache", cfg.Cache.Backend).Str("spot", cfg.Binance.SpotBaseURL).Msg("bookscope initialized")

	return &app{
		cfg:     cfg,
		client:  client,
		metrics: metrics,
		service: service,
		cache:   responseCache,
		out:     cmd.OutOrStdout(),
		json:    opts.jsonOutput,
	}, nil
}

// Close releases the response cache backend
func (a *app) Close() {
	if closer, ok := a.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Debug().Err(err).Msg("closing cache")
		}
	}
}

// withApp builds the app, runs fn and closes the app
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// usageError is a missing or malformed positional argument
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func symbolRequired(example string) error {
	return &usageError{msg: fmt.Sprintf("Symbol required. Example: %s %s", appName, example)}
}

func symbolAndIntervalRequired(example string) error {
	return &usageError{msg: fmt.Sprintf("Symbol and interval required. Example: %s %s", appName, example)}
}

// requireSymbol validates that a symbol is present before any network or cache setup
func requireSymbol(example string, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if arg(args, 0) == "" {
			return symbolRequired(example)
		}
		return cobra.MaximumNArgs(maxArgs)(cmd, args)
	}
}

func requireSymbolAndInterval(example string, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if arg(args, 0) == "" || arg(args, 1) == "" {
			return symbolAndIntervalRequired(example)
		}
		return cobra.MaximumNArgs(maxArgs)(cmd, args)
	}
}

// parseLimit returns fallback for missing, unparseable or non-positive input
func parseLimit(args []string, i int, fallback int) int {
	if i >= len(args) || args[i] == "" {
		return fallback
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func arg(args []string, i int) string {
	if i < len(args) {
		return strings.ToUpper(strings.TrimSpace(args[i]))
	}
	return ""
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &usageError{msg: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return d, nil
}
