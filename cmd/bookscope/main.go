package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "bookscope"
	version = "v0.4.0"
)

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Order book and trade flow analysis for Binance markets",
		Version: version,
		Long: `bookscope reads public Binance spot and USDT-M futures market data and derives
spread, depth, imbalance, liquidity and trade-flow metrics plus execution plans.

Examples:
  bookscope ping
  bookscope ticker BTCUSDT
  bookscope orderbook BTCUSDT 100
  bookscope analyze BTCUSDT ETHUSDT
  bookscope slippage BTCUSDT 2.5 --side buy
  bookscope split BTCUSDT 10 --max-slippage 0.5
  bookscope futures-ticker BTCUSDT`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
	}
	rootCmd.SetOut(out)

	opts.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newPingCmd(opts),
		newTimeCmd(opts),
		newExchangeInfoCmd(opts),
		newTickerCmd(opts),
		newOrderBookCmd(opts),
		newTradesCmd(opts),
		newKlinesCmd(opts),
		newAnalyzeCmd(opts),
		newSlippageCmd(opts),
		newSplitCmd(opts),
		newBuyableCmd(opts),
		newRiskCmd(opts),
		newFuturesExchangeInfoCmd(opts),
		newFuturesFundingRateCmd(opts),
		newFuturesMarkPriceCmd(opts),
		newFuturesPremiumIndexCmd(opts),
		newFuturesTickerCmd(opts),
		newFuturesOrderBookCmd(opts),
		newFuturesTradesCmd(opts),
		newFuturesKlinesCmd(opts),
		newMonitorCmd(opts),
		newWatchCmd(opts),
	)

	return rootCmd
}

// setupLogging writes human-readable logs on a terminal and JSON otherwise.
// An empty level defers to the config file once it is loaded.
func setupLogging(level string) error {
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if level == "" {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		return nil
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func (o *rootOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Path to YAML config (default config/bookscope.yaml if present)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug|info|warn|error); overrides config")
	fs.BoolVar(&o.jsonOutput, "json", false, "Print analysis and planning results as JSON")
}
