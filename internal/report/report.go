package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"BinarySentinel/internal/history"
	"BinarySentinel/internal/model"
	"BinarySentinel/internal/surface"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

func keyValue(w io.Writer, title string, rows [][]string) {
	fmt.Fprintln(w, title)
	table := newTable(w, "Field", "Value")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.AppendBulk(rows)
	table.Render()
}

func f(format string, v float64) string { return fmt.Sprintf(format, v) }

func inputRows(in model.PricingInputs) [][]string {
	return [][]string{
		{"Spot", f("%.2f", in.Spot)},
		{"Strike", f("%.2f", in.Strike)},
		{"Time to expiry (s)", f("%.0f", in.TimeToExpirySeconds)},
		{"Volatility", f("%.2f%%", in.Volatility*100)},
		{"Rate", f("%.2f%%", in.Rate*100)},
	}
}

// Pricing renders a full evaluation.
func Pricing(w io.Writer, res model.PricingResult) {
	rows := inputRows(res.Inputs)
	rows = append(rows,
		[]string{"Up price", f("%.4f", res.UpPrice)},
		[]string{"Down price", f("%.4f", res.DownPrice)},
		[]string{"Zone", string(res.Zone)},
		[]string{"Description", res.ZoneDescription},
	)
	keyValue(w, "Binary option pricing", rows)
}

// Greeks renders both sides of the pair side by side.
func Greeks(w io.Writer, snap model.GreeksSnapshot) {
	fmt.Fprintln(w, "Greeks")
	table := newTable(w, "Greek", "Up", "Down")
	table.AppendBulk([][]string{
		{"Price", f("%.4f", snap.UpPrice), f("%.4f", snap.DownPrice)},
		{"Delta", f("%.6e", snap.Up.Delta), f("%.6e", snap.Down.Delta)},
		{"Gamma", f("%.6e", snap.Up.Gamma), f("%.6e", snap.Down.Gamma)},
		{"Theta/s", f("%.6e", snap.Up.Theta), f("%.6e", snap.Down.Theta)},
		{"Vega", f("%.6e", snap.Up.Vega), f("%.6e", snap.Down.Vega)},
	})
	table.Render()
}

// Zone renders a zone classification.
func Zone(w io.Writer, zc model.ZoneClassification, distancePct, ttl float64) {
	keyValue(w, "Risk zone", [][]string{
		{"Zone", string(zc.Zone)},
		{"Distance to strike", f("%.4f%%", distancePct)},
		{"Time to expiry (s)", f("%.0f", ttl)},
		{"Description", zc.Description},
	})
}

// ImpliedVol renders a solved implied volatility.
func ImpliedVol(w io.Writer, marketPrice, iv float64, side string) {
	keyValue(w, "Implied volatility", [][]string{
		{"Side", side},
		{"Market price", f("%.4f", marketPrice)},
		{"Implied volatility", f("%.2f%%", iv*100)},
	})
}

// Risk renders a risk profile.
func Risk(w io.Writer, p model.RiskProfile) {
	rows := inputRows(p.Inputs)
	rows = append(rows,
		[]string{"Zone", string(p.Zone)},
		[]string{"Moneyness", string(p.Moneyness)},
		[]string{"Distance to strike", f("%+.4f%%", p.DistanceToStrikePct)},
		[]string{"Up / Down", fmt.Sprintf("%.4f / %.4f", p.UpPrice, p.DownPrice)},
		[]string{"Delta", f("%.6e", p.Delta)},
		[]string{"Dollar delta", f("%.4f", p.DollarDelta)},
		[]string{"Gamma", f("%.6e", p.Gamma)},
		[]string{"Theta/min", f("%.6f", p.ThetaPerMinute)},
		[]string{"Vega", f("%.6f", p.Vega)},
		[]string{"Gamma risk score", f("%.1f", p.GammaRiskScore)},
		[]string{"Level", p.RecommendationLevel},
		[]string{"Recommendation", p.Recommendation},
	)
	keyValue(w, "Risk profile", rows)
}

// Hedge renders a delta hedge.
func Hedge(w io.Writer, h model.HedgeSummary) {
	keyValue(w, "Delta hedge", [][]string{
		{"Position size", f("%.2f", h.PositionSize)},
		{"Unit delta", f("%.6e", h.UnitDelta)},
		{"Position delta", f("%.6f", h.PositionDelta)},
		{"Underlying to hedge", f("%+.6f", h.UnderlyingToHedge)},
		{"Hedge value", f("%+.2f", h.HedgeValue)},
		{"Gamma exposure", f("%.6e", h.GammaExposure)},
	})
}

// Surface renders a surface with one row per time to expiry and one column per spot.
// Wide grids are thinned to at most maxCols spot columns.
func Surface(w io.Writer, s surface.Surface, maxCols int) {
	cols := indexes(len(s.Spots), maxCols)
	header := []string{"TTL \\ Spot"}
	for _, j := range cols {
		header = append(header, f("%.0f", s.Spots[j]))
	}
	fmt.Fprintf(w, "%s surface\n", s.Metric)
	table := newTable(w, header...)
	table.SetAutoFormatHeaders(false)
	format := "%.4f"
	if s.Metric != surface.MetricPrice {
		format = "%.3e"
	}
	for i, ttl := range s.Times {
		row := []string{f("%.0fs", ttl)}
		for _, j := range cols {
			row = append(row, f(format, s.Values[i][j]))
		}
		table.Append(row)
	}
	table.Render()
}

func indexes(n, limit int) []int {
	if limit <= 0 || n <= limit {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, limit)
	for k := 0; k < limit; k++ {
		out = append(out, k*(n-1)/(limit-1))
	}
	return out
}

// HistorySummary renders the aggregate of an analysed session.
func HistorySummary(w io.Writer, s history.Summary) {
	rows := [][]string{
		{"Rows", fmt.Sprint(s.Rows)},
		{"Markets", fmt.Sprint(s.Markets)},
		{"Mean edge", f("%+.4f", s.MeanEdge)},
		{"Mean |edge|", f("%.4f", s.MeanAbsEdge)},
		{"Max |edge|", f("%.4f", s.MaxAbsEdge)},
		{"IV converged", fmt.Sprintf("%d/%d", s.IVConverged, s.Rows)},
	}
	if s.IVConverged > 0 {
		rows = append(rows, []string{"Median IV", f("%.2f%%", s.MedianIV*100)})
	}
	for _, z := range model.Zones {
		rows = append(rows, []string{"Zone " + string(z), fmt.Sprint(s.ZoneCounts[z])})
	}
	keyValue(w, "History analysis", rows)
}

// Markets lists discovered up/down markets.
func Markets(w io.Writer, markets []model.Market, now time.Time) {
	table := newTable(w, "ID", "Slug", "Ends", "Remaining")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range markets {
		ends, remaining := "-", "-"
		if !m.EndDate.IsZero() {
			ends = m.EndDate.UTC().Format(time.RFC3339)
			remaining = m.EndDate.Sub(now).Truncate(time.Second).String()
		}
		table.Append([]string{m.ID, m.Slug, ends, remaining})
	}
	table.Render()
}
