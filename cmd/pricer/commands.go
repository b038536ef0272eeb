package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"BinarySentinel/internal/collector"
	"BinarySentinel/internal/config"
	"BinarySentinel/internal/history"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/report"
	"BinarySentinel/internal/risk"
	"BinarySentinel/internal/surface"
)

func newPriceCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Price the Up and Down contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			res, err := p.Price(o.spot, o.strike, o.ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return o.render(out, res, func() { report.Pricing(out, res) })
		},
	}
}

func newGreeksCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "greeks",
		Short: "Show delta, gamma, theta and vega for both sides",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			snap, err := p.FullGreeks(o.spot, o.strike, o.ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return o.render(out, snap, func() { report.Greeks(out, snap) })
		},
	}
}

func newZoneCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "zone",
		Short: "Classify the risk zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			if err := pricing.Validate(p.Inputs(o.spot, o.strike, o.ttl)); err != nil {
				return err
			}
			zc := pricing.ClassifyZone(o.ttl, o.spot, o.strike)
			dist := pricing.DistanceToStrikePct(o.spot, o.strike)
			out := cmd.OutOrStdout()
			return o.render(out, zc, func() { report.Zone(out, zc, dist, o.ttl) })
		},
	}
}

func newIVCmd(o *options) *cobra.Command {
	var (
		price float64
		side  string
	)
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Solve implied volatility from a market price",
		RunE: func(cmd *cobra.Command, args []string) error {
			isCall, err := parseSide(side)
			if err != nil {
				return err
			}
			p, err := o.pricer()
			if err != nil {
				return err
			}
			iv, err := p.ImpliedVolatility(price, o.spot, o.strike, o.ttl, isCall)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			body := map[string]any{"implied_volatility": iv, "market_price": price, "side": side}
			return o.render(out, body, func() { report.ImpliedVol(out, price, iv, side) })
		},
	}
	cmd.Flags().Float64Var(&price, "price", 0, "Market price of the contract (0-1)")
	cmd.Flags().StringVar(&side, "side", "up", "Contract side (up|down)")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseSide(side string) (bool, error) {
	switch strings.ToLower(side) {
	case "up":
		return true, nil
	case "down":
		return false, nil
	}
	return false, fmt.Errorf("side must be up or down, got %q", side)
}

func newRiskCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Show the aggregated risk profile and recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			profile, err := risk.BuildProfile(p, o.spot, o.strike, o.ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return o.render(out, profile, func() { report.Risk(out, profile) })
		},
	}
}

func newHedgeCmd(o *options) *cobra.Command {
	var size float64
	cmd := &cobra.Command{
		Use:   "hedge",
		Short: "Compute the underlying quantity that neutralises an Up position's delta",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			h, err := risk.DeltaHedge(p, size, o.spot, o.strike, o.ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return o.render(out, h, func() { report.Hedge(out, h) })
		},
	}
	cmd.Flags().Float64Var(&size, "size", 1, "Number of Up contracts held (negative when short)")
	return cmd
}

func newSurfaceCmd(o *options) *cobra.Command {
	var (
		metric  string
		csvPath string
		cols    int
	)
	cmd := &cobra.Command{
		Use:   "surface",
		Short: "Evaluate a metric over a spot by time-to-expiry grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := surface.ParseMetric(metric)
			if err != nil {
				return err
			}
			g := surface.DefaultGrid(o.strike, o.vol)
			g.Rate = o.rate
			s, err := surface.Evaluate(cmd.Context(), g, m)
			if err != nil {
				return err
			}
			if csvPath != "" {
				fh, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				defer fh.Close()
				if err := surface.WriteCSV(fh, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d points to %s\n", len(s.Spots)*len(s.Times), csvPath)
			}
			out := cmd.OutOrStdout()
			return o.render(out, s, func() { report.Surface(out, s, cols) })
		},
	}
	cmd.Flags().StringVar(&metric, "metric", string(surface.MetricPrice), "Metric (price|delta|gamma|theta|vega)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write the surface to this CSV file")
	cmd.Flags().IntVar(&cols, "cols", 9, "Maximum spot columns in the table")
	return cmd
}

func newHistoryCmd(o *options) *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Replay a recorded sample CSV through the model",
		Long: `Reads recorded market samples, prices each row, solves the implied volatility of the
Up mid and reports the edge between market and model. --strike 0 uses the first spot
seen for each market as its strike.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pricer()
			if err != nil {
				return err
			}
			samples, err := history.ReadFile(inPath)
			if err != nil {
				return err
			}
			rows, err := history.Analyze(samples, o.strike, p)
			if err != nil {
				return err
			}
			if outPath != "" {
				fh, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer fh.Close()
				if err := history.WriteCSV(fh, rows); err != nil {
					return err
				}
			}
			sum := history.Summarize(rows)
			out := cmd.OutOrStdout()
			return o.render(out, sum, func() { report.HistorySummary(out, sum) })
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "Recorded samples CSV")
	cmd.Flags().StringVar(&outPath, "out", "", "Write per-row analysis CSV here")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newMarketsCmd(o *options) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "List active Polymarket up/down markets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			poly := collector.NewPolymarket(collector.PolymarketConfig{
				CLOBURL:           cfg.Market.PolymarketCLOBURL,
				GammaURL:          cfg.Market.PolymarketGamma,
				SlugKeywords:      cfg.Market.SlugKeywords,
				RequestsPerSecond: cfg.Market.RequestsPerSecond,
				Proxy:             cfg.Proxy,
			})
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			markets, err := poly.FindUpDownMarkets(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return o.render(out, markets, func() { report.Markets(out, markets, time.Now()) })
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "Config file")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
