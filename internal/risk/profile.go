package risk

import (
	"math"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

// Gamma risk score parameters.
const (
	// ScoreHorizonSeconds is where the time factor reaches 0 (15 minutes to expiry).
	ScoreHorizonSeconds = 900.0
	// ScoreStrikeBandPct is where the strike factor reaches 0 (1% from strike).
	ScoreStrikeBandPct = 1.0
	// HighRiskScore is the score above which new positions are discouraged.
	HighRiskScore = 70.0
)

// Recommendation levels.
const (
	LevelHighRisk   = "HIGH_RISK"
	LevelLockIn     = "LOCK_IN"
	LevelNormal     = "NORMAL"
	LevelTransition = "TRANSITION"
)

// GammaRiskScore is a 0~100 heuristic that grows as expiry nears and spot approaches strike.
// distancePct may be signed; only its magnitude counts.
func GammaRiskScore(ttlSeconds, distancePct float64) float64 {
	timeFactor := math.Max(0, 1-math.Max(ttlSeconds, 0)/ScoreHorizonSeconds)
	strikeFactor := math.Max(0, 1-math.Abs(distancePct)/ScoreStrikeBandPct)
	return timeFactor * strikeFactor * 100
}

// Recommend picks the advice for a profile. First match wins:
// score above HighRiskScore, lock-in zone, linear decay zone, anything else.
func Recommend(zone model.Zone, signedDistancePct, score float64) (level, text string) {
	switch {
	case score > HighRiskScore:
		return LevelHighRisk, "HIGH RISK: Extreme gamma exposure. Avoid new positions."
	case zone == model.ZoneLockIn:
		direction := "Down"
		if signedDistancePct > 0 {
			direction = "Up"
		}
		return LevelLockIn, "LOCK-IN: " + direction + " likely to win. Low risk of reversal."
	case zone == model.ZoneLinearDecay:
		return LevelNormal, "NORMAL: Standard theta decay. Greeks behave predictably."
	default:
		return LevelTransition, "TRANSITION: Monitor closely for zone changes."
	}
}

// BuildProfile prices the pair and aggregates Greeks, zone and score into a RiskProfile.
func BuildProfile(p *pricing.Pricer, spot, strike, ttlSeconds float64, opts ...pricing.CallOption) (model.RiskProfile, error) {
	snap, err := p.FullGreeks(spot, strike, ttlSeconds, opts...)
	if err != nil {
		return model.RiskProfile{}, err
	}
	return FromSnapshot(snap), nil
}

// FromSnapshot aggregates an already computed GreeksSnapshot.
func FromSnapshot(snap model.GreeksSnapshot) model.RiskProfile {
	in := snap.Inputs
	zone := pricing.ClassifyZone(in.TimeToExpirySeconds, in.Spot, in.Strike)

	distance := (in.Spot - in.Strike) / in.Strike * 100
	moneyness := model.OutOfTheMoney
	if in.Spot >= in.Strike {
		moneyness = model.InTheMoney
	}
	score := GammaRiskScore(in.TimeToExpirySeconds, distance)
	level, text := Recommend(zone.Zone, distance, score)

	return model.RiskProfile{
		Inputs:              in,
		Zone:                zone.Zone,
		ZoneDescription:     zone.Description,
		Moneyness:           moneyness,
		DistanceToStrikePct: distance,
		UpPrice:             snap.UpPrice,
		DownPrice:           snap.DownPrice,
		Delta:               snap.Up.Delta,
		DollarDelta:         snap.Up.Delta, // price change of one contract per $1 move
		Gamma:               snap.Up.Gamma,
		ThetaPerSecond:      snap.Up.Theta,
		ThetaPerMinute:      snap.Up.Theta * 60,
		Vega:                snap.Up.Vega,
		GammaRiskScore:      score,
		Recommendation:      text,
		RecommendationLevel: level,
	}
}
