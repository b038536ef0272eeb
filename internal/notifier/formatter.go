package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"BinarySentinel/internal/model"
)

// HelpText lists the supported commands.
const HelpText = "Available commands:\n" +
	"• /price  latest model vs market prices\n" +
	"• /risk  gamma risk profile\n" +
	"• /hedge  delta hedge for the open position\n" +
	"• /position  position book\n" +
	"• /fill &lt;size&gt; &lt;price&gt;  book Up contracts on the tracked market, negative size sells\n" +
	"• /close [price]  close the position, at the market mid by default\n" +
	"• /help  this message"

var zoneIcons = map[model.Zone]string{
	model.ZoneLinearDecay: "🟢",
	model.ZoneLockIn:      "🔒",
	model.ZoneTransition:  "🟡",
	model.ZoneGammaRisk:   "🔴",
}

func zoneIcon(z model.Zone) string {
	if icon, ok := zoneIcons[z]; ok {
		return icon
	}
	return "•"
}

func formatTTL(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

// FormatPricing formats a single model evaluation.
func FormatPricing(res model.PricingResult) string {
	var b strings.Builder
	in := res.Inputs
	b.WriteString(fmt.Sprintf("📐 <b>Binary pricing</b> | %s\n\n", res.Timestamp.Format("15:04:05")))
	b.WriteString(fmt.Sprintf("Spot: %.2f | Strike: %.2f\n", in.Spot, in.Strike))
	b.WriteString(fmt.Sprintf("Time left: %s | Vol: %.1f%%\n", formatTTL(in.TimeToExpirySeconds), in.Volatility*100))
	b.WriteString(fmt.Sprintf("Up: %.4f | Down: %.4f\n", res.UpPrice, res.DownPrice))
	b.WriteString(fmt.Sprintf("Δ %.6f | Γ %.3e | Θ %.3e | ν %.6f\n", res.Greeks.Delta, res.Greeks.Gamma, res.Greeks.Theta, res.Greeks.Vega))
	b.WriteString(fmt.Sprintf("%s %s\n", zoneIcon(res.Zone), res.ZoneDescription))
	return b.String()
}

// FormatRiskProfile formats the aggregated risk view.
func FormatRiskProfile(p model.RiskProfile) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>Risk profile</b> | %s\n\n", zoneIcon(p.Zone), p.Zone))
	b.WriteString(fmt.Sprintf("%s\n", p.ZoneDescription))
	b.WriteString(fmt.Sprintf("Moneyness: %s (%+.3f%% from strike)\n", p.Moneyness, p.DistanceToStrikePct))
	b.WriteString(fmt.Sprintf("Up: %.4f | Down: %.4f\n", p.UpPrice, p.DownPrice))
	b.WriteString(fmt.Sprintf("Delta: %.6f ($ delta %.4f)\n", p.Delta, p.DollarDelta))
	b.WriteString(fmt.Sprintf("Gamma: %.3e\n", p.Gamma))
	b.WriteString(fmt.Sprintf("Theta: %.3e /s | %.3e /min\n", p.ThetaPerSecond, p.ThetaPerMinute))
	b.WriteString(fmt.Sprintf("Vega: %.6f\n", p.Vega))
	b.WriteString(fmt.Sprintf("Gamma risk score: <b>%.0f</b>/100\n\n", p.GammaRiskScore))
	b.WriteString(fmt.Sprintf("[%s] %s\n", p.RecommendationLevel, p.Recommendation))
	return b.String()
}

// FormatSnapshot formats the monitor state for the tracked market.
func FormatSnapshot(s model.MonitorSnapshot) string {
	var b strings.Builder
	m := s.Sample.Market
	q := s.Sample.Quote
	b.WriteString(fmt.Sprintf("📊 <b>%s</b>\n", html.EscapeString(m.Question)))
	b.WriteString(fmt.Sprintf("Spot: %.2f | Strike: %.2f | Left: %s\n",
		s.Sample.Spot, s.Sample.Strike, formatTTL(s.Sample.TimeToExpirySeconds)))
	b.WriteString(fmt.Sprintf("Market Up: %.4f (%.2f/%.2f) | Down: %.4f (%.2f/%.2f)\n",
		q.UpPrice, q.UpBid, q.UpAsk, q.DownPrice, q.DownBid, q.DownAsk))
	b.WriteString(fmt.Sprintf("Model Up: %.4f | Down: %.4f | Edge: %+.4f\n",
		s.Profile.UpPrice, s.Profile.DownPrice, s.Edge))
	b.WriteString(fmt.Sprintf("Vol used: %.1f%% (%s)", s.Volatility*100, s.VolatilitySource))
	if s.ImpliedVol != nil {
		b.WriteString(fmt.Sprintf(" | Implied: %.1f%%", *s.ImpliedVol*100))
	} else {
		b.WriteString(" | Implied: n/a")
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s | score %.0f\n", zoneIcon(s.Profile.Zone), s.Profile.Zone, s.Profile.GammaRiskScore))
	return b.String()
}

// FormatHedge formats a delta hedge.
func FormatHedge(h model.HedgeSummary) string {
	var b strings.Builder
	action := "buy"
	if h.UnderlyingToHedge < 0 {
		action = "sell"
	}
	b.WriteString("🛡 <b>Delta hedge</b>\n\n")
	b.WriteString(fmt.Sprintf("Position: %.2f Up contracts\n", h.PositionSize))
	b.WriteString(fmt.Sprintf("Unit delta: %.6f | Position delta: %.6f\n", h.UnitDelta, h.PositionDelta))
	b.WriteString(fmt.Sprintf("Hedge: %s %.6f underlying (%.2f notional)\n", action, abs(h.UnderlyingToHedge), abs(h.HedgeValue)))
	b.WriteString(fmt.Sprintf("Gamma exposure: %.3e | Rebalance per $1: %.3e\n", h.GammaExposure, h.RebalancePerDollar))
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// FormatZoneAlert announces a zone change.
func FormatZoneAlert(prev model.Zone, s model.MonitorSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Zone change</b>: %s → %s %s\n\n", prev, s.Profile.Zone, zoneIcon(s.Profile.Zone)))
	b.WriteString(FormatSnapshot(s))
	b.WriteString(fmt.Sprintf("\n[%s] %s", s.Profile.RecommendationLevel, s.Profile.Recommendation))
	return b.String()
}

// FormatScoreAlert announces a gamma risk score crossing threshold.
func FormatScoreAlert(threshold float64, s model.MonitorSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚨 <b>Gamma risk %.0f</b> crossed %.0f\n\n", s.Profile.GammaRiskScore, threshold))
	b.WriteString(FormatSnapshot(s))
	b.WriteString(fmt.Sprintf("\n[%s] %s", s.Profile.RecommendationLevel, s.Profile.Recommendation))
	return b.String()
}

// FormatPosition formats the position book, marked at mark when positive.
func FormatPosition(st model.PositionState, mark float64) string {
	var b strings.Builder
	b.WriteString("📦 <b>Position</b>\n\n")
	if !st.Open() {
		b.WriteString("Flat\n")
	} else {
		b.WriteString(fmt.Sprintf("Market: %s\n", st.MarketID))
		b.WriteString(fmt.Sprintf("Size: %s Up @ %s\n", st.Size.String(), st.AvgPrice.StringFixed(4)))
		if mark > 0 {
			b.WriteString(fmt.Sprintf("Mark: %.4f | Unrealized: %s\n", mark, st.UnrealizedPnL(mark).StringFixed(2)))
		}
	}
	b.WriteString(fmt.Sprintf("Realized: %s | Cash: %s | Fills: %d\n",
		st.RealizedPnL.StringFixed(2), st.Cash.StringFixed(2), st.Fills))
	if !st.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05")))
	}
	return b.String()
}

// FormatSummary formats the periodic activity summary.
func FormatSummary(sum model.PeriodSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🕐 <b>Summary</b> | %s → %s\n\n", sum.Start.Format("15:04"), sum.End.Format("15:04")))
	b.WriteString(fmt.Sprintf("Ticks: %d | Errors: %d | Alerts: %d | Markets: %d\n",
		sum.Ticks, sum.Errors, sum.Alerts, sum.Markets))
	b.WriteString(fmt.Sprintf("Max gamma risk score: %.0f\n", sum.MaxScore))
	for _, z := range model.Zones {
		if n := sum.ZoneCounts[z]; n > 0 {
			b.WriteString(fmt.Sprintf("  %s %s: %d\n", zoneIcon(z), z, n))
		}
	}
	return b.String()
}
