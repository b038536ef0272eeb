package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"BinarySentinel/internal/logging"
	"BinarySentinel/internal/pricing"
)

// options are the flags shared by every subcommand.
type options struct {
	spot, strike, ttl float64
	vol, rate         float64
	json              bool
	logLevel          string
}

func (o *options) pricer() (*pricing.Pricer, error) {
	return pricing.NewPricer(pricing.Settings{DefaultVolatility: o.vol, DefaultRate: o.rate})
}

// render writes v as indented JSON when --json is set, otherwise calls table.
func (o *options) render(w io.Writer, v any, table func()) error {
	if !o.json {
		table()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "pricer",
		Short: "Binary option pricing and risk tools for 15-minute up/down markets",
		Long: `Price Up/Down binary contracts with Black-Scholes, inspect Greeks and risk zones,
solve implied volatility and replay recorded market sessions.

Examples:
  pricer price --spot 95300 --strike 95000 --ttl 420
  pricer iv --spot 95300 --strike 95000 --ttl 420 --price 0.62
  pricer surface --strike 95000 --metric gamma --csv gamma.csv
  pricer history --in data/samples.csv --out data/analysis.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(opts.logLevel, "text")
		},
	}

	f := root.PersistentFlags()
	f.Float64Var(&opts.spot, "spot", 0, "Underlying spot price")
	f.Float64Var(&opts.strike, "strike", 0, "Strike price")
	f.Float64Var(&opts.ttl, "ttl", 0, "Seconds to expiry")
	f.Float64Var(&opts.vol, "vol", pricing.DefaultVolatility, "Annualised volatility")
	f.Float64Var(&opts.rate, "rate", 0, "Risk-free rate")
	f.BoolVar(&opts.json, "json", false, "Print JSON instead of tables")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")

	root.AddCommand(
		newPriceCmd(opts),
		newGreeksCmd(opts),
		newZoneCmd(opts),
		newIVCmd(opts),
		newRiskCmd(opts),
		newHedgeCmd(opts),
		newSurfaceCmd(opts),
		newHistoryCmd(opts),
		newMarketsCmd(opts),
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("load .env: %v", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
