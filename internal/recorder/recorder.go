package recorder

import "BinarySentinel/internal/model"

// Alert kinds.
const (
	AlertZoneEntry = "ZONE_ENTRY"
	AlertRiskScore = "RISK_SCORE"
)

// PricingEvent holds one priced tick of the tracked market.
type PricingEvent struct {
	MarketID   string
	Profile    model.RiskProfile
	MarketUp   float64
	MarketDown float64
	ImpliedVol *float64 // nil when the solver did not converge
}

// AlertEvent records a notification trigger.
type AlertEvent struct {
	ID       string // assigned when empty
	MarketID string
	Kind     string // AlertZoneEntry or AlertRiskScore
	Zone     model.Zone
	Score    float64
	Spot     float64
	Message  string
}

// HedgeEvent records a computed delta hedge for the open position.
type HedgeEvent struct {
	MarketID string
	Spot     float64
	Strike   float64
	Hedge    model.HedgeSummary
}

// Recorder persists monitor history for analysis.
type Recorder interface {
	RecordSample(s *model.MarketSample) error
	RecordPricing(evt *PricingEvent) error
	RecordAlert(evt *AlertEvent) error
	RecordHedge(evt *HedgeEvent) error
	Close() error
}
