package notifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"BinarySentinel/internal/model"
)

func snapshot() model.MonitorSnapshot {
	iv := 0.55
	return model.MonitorSnapshot{
		Sample: model.MarketSample{
			Spot:                95010,
			Strike:              95000,
			TimeToExpirySeconds: 45,
			Quote:               model.Quote{UpPrice: 0.52, UpBid: 0.51, UpAsk: 0.53, DownPrice: 0.48},
			Market:              model.Market{Question: "BTC <Up> or Down?"},
		},
		Profile: model.RiskProfile{
			Zone:                model.ZoneGammaRisk,
			UpPrice:             0.5123,
			DownPrice:           0.4877,
			GammaRiskScore:      94.6,
			RecommendationLevel: "HIGH_RISK",
			Recommendation:      "avoid new positions",
		},
		Volatility:       0.6,
		VolatilitySource: "fixed",
		ImpliedVol:       &iv,
		Edge:             0.0077,
	}
}

func TestFormatSnapshot(t *testing.T) {
	msg := FormatSnapshot(snapshot())
	assert.Contains(t, msg, "BTC &lt;Up&gt; or Down?")
	assert.Contains(t, msg, "Left: 45s")
	assert.Contains(t, msg, "Edge: +0.0077")
	assert.Contains(t, msg, "Implied: 55.0%")
	assert.Contains(t, msg, "🔴 gamma_risk | score 95")

	s := snapshot()
	s.ImpliedVol = nil
	assert.Contains(t, FormatSnapshot(s), "Implied: n/a")
}

func TestFormatAlerts(t *testing.T) {
	zone := FormatZoneAlert(model.ZoneTransition, snapshot())
	assert.Contains(t, zone, "transition → gamma_risk")
	assert.Contains(t, zone, "[HIGH_RISK] avoid new positions")

	score := FormatScoreAlert(70, snapshot())
	assert.Contains(t, score, "Gamma risk 95</b> crossed 70")
}

func TestFormatPricing(t *testing.T) {
	msg := FormatPricing(model.PricingResult{
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Inputs:          model.PricingInputs{Spot: 95000, Strike: 95000, TimeToExpirySeconds: 300, Volatility: 0.6},
		UpPrice:         0.4996,
		DownPrice:       0.5004,
		Zone:            model.ZoneLinearDecay,
		ZoneDescription: "Linear decay",
	})
	assert.Contains(t, msg, "Time left: 5m0s | Vol: 60.0%")
	assert.Contains(t, msg, "Up: 0.4996 | Down: 0.5004")
	assert.Contains(t, msg, "🟢 Linear decay")
}

func TestFormatHedge(t *testing.T) {
	msg := FormatHedge(model.HedgeSummary{PositionSize: 1000, UnitDelta: 0.002, PositionDelta: 2, UnderlyingToHedge: -2, HedgeValue: -190000})
	assert.Contains(t, msg, "Hedge: sell 2.000000 underlying (190000.00 notional)")
}

func TestFormatPosition(t *testing.T) {
	flat := FormatPosition(model.PositionState{}, 0)
	assert.Contains(t, flat, "Flat")

	open := FormatPosition(model.PositionState{
		MarketID: "m1",
		Size:     decimal.NewFromInt(100),
		AvgPrice: decimal.RequireFromString("0.4"),
		Cash:     decimal.NewFromInt(-40),
		Fills:    1,
	}, 0.5)
	assert.Contains(t, open, "Size: 100 Up @ 0.4000")
	assert.Contains(t, open, "Unrealized: 10.00")
	assert.Contains(t, open, "Cash: -40.00")
}

func TestFormatSummary(t *testing.T) {
	msg := FormatSummary(model.PeriodSummary{
		Ticks:      3600,
		Alerts:     2,
		MaxScore:   88,
		ZoneCounts: map[model.Zone]int{model.ZoneGammaRisk: 40, model.ZoneLinearDecay: 3000},
	})
	assert.Contains(t, msg, "Ticks: 3600")
	assert.Contains(t, msg, "gamma_risk: 40")
	assert.NotContains(t, msg, "lock_in")
}
