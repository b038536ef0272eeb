package model

// Moneyness of the Up side.
type Moneyness string

const (
	InTheMoney    Moneyness = "ITM"
	OutOfTheMoney Moneyness = "OTM"
)

// RiskProfile is the aggregated risk summary for the Up/Down pair.
type RiskProfile struct {
	Inputs              PricingInputs `json:"inputs"`
	Zone                Zone          `json:"zone"`
	ZoneDescription     string        `json:"zone_description"`
	Moneyness           Moneyness     `json:"moneyness"`
	DistanceToStrikePct float64       `json:"distance_to_strike_pct"` // signed
	UpPrice             float64       `json:"up_price"`
	DownPrice           float64       `json:"down_price"`
	Delta               float64       `json:"delta"`
	DollarDelta         float64       `json:"dollar_delta"`
	Gamma               float64       `json:"gamma"`
	ThetaPerSecond      float64       `json:"theta_per_second"`
	ThetaPerMinute      float64       `json:"theta_per_minute"`
	Vega                float64       `json:"vega"`
	GammaRiskScore      float64       `json:"gamma_risk_score"` // 0 ~ 100
	Recommendation      string        `json:"recommendation"`
	RecommendationLevel string        `json:"recommendation_level"`
}

// HedgeSummary describes the underlying quantity required to neutralise an Up position's delta.
type HedgeSummary struct {
	PositionSize       float64 `json:"position_size"`
	UnitDelta          float64 `json:"unit_delta"`
	PositionDelta      float64 `json:"position_delta"`
	UnderlyingToHedge  float64 `json:"underlying_to_hedge"`
	HedgeValue         float64 `json:"hedge_value"`
	GammaExposure      float64 `json:"gamma_exposure"`
	RebalancePerDollar float64 `json:"rebalance_per_dollar"`
}
