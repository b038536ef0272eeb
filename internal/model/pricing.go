package model

import "time"

// PricingInputs are the arguments of a single binary option evaluation.
// All monetary values share one currency unit; TimeToExpirySeconds of 0 means at or past expiry.
type PricingInputs struct {
	Spot                float64 `json:"spot"`
	Strike              float64 `json:"strike"`
	TimeToExpirySeconds float64 `json:"time_to_expiry_seconds"`
	Volatility          float64 `json:"volatility"`
	Rate                float64 `json:"rate"`
}

// Greeks holds the sensitivities of one side of the contract.
// Theta is expressed per second.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Negate returns the Greeks of the complementary side (down = 1 - up).
func (g Greeks) Negate() Greeks {
	return Greeks{Delta: -g.Delta, Gamma: -g.Gamma, Theta: -g.Theta, Vega: -g.Vega}
}

// PricingResult is the full evaluation of the Up/Down pair at one point in time.
type PricingResult struct {
	Timestamp       time.Time     `json:"timestamp"`
	Inputs          PricingInputs `json:"inputs"`
	UpPrice         float64       `json:"up_price"`
	DownPrice       float64       `json:"down_price"`
	Greeks          Greeks        `json:"greeks"`
	Zone            Zone          `json:"zone"`
	ZoneDescription string        `json:"zone_description"`
}

// GreeksSnapshot carries both sides of the pair. Down is always derived from Up.
type GreeksSnapshot struct {
	Inputs    PricingInputs `json:"inputs"`
	UpPrice   float64       `json:"up_price"`
	DownPrice float64       `json:"down_price"`
	Up        Greeks        `json:"up"`
	Down      Greeks        `json:"down"`
}
