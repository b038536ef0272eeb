package pricing

import (
	"fmt"
	"math"

	"BinarySentinel/internal/model"
)

// Zone thresholds.
const (
	LinearDecaySeconds = 180.0
	GammaWindowSeconds = 60.0
	NearStrikePct      = 0.5
)

// DistanceToStrikePct is the unsigned distance between spot and strike, in percent of strike.
// It is NaN when strike is not positive.
func DistanceToStrikePct(spot, strike float64) float64 {
	if !(strike > 0) {
		return math.NaN()
	}
	return math.Abs(spot-strike) / strike * 100
}

// ClassifyZone labels the market state. First match wins:
// more than 3 minutes left is linear decay; more than 1 minute left and more than 0.5% away is
// lock-in; at most 1 minute left and at most 0.5% away is gamma risk; anything else is transition.
//
// Inputs are expected to pass Validate. A non-positive strike or non-finite spot has no
// meaningful distance and is reported as transition.
func ClassifyZone(ttlSeconds, spot, strike float64) model.ZoneClassification {
	dist := DistanceToStrikePct(spot, strike)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return model.ZoneClassification{
			Zone:        model.ZoneTransition,
			Description: fmt.Sprintf("Undefined distance: spot=%v strike=%v.", spot, strike),
		}
	}

	switch {
	case ttlSeconds > LinearDecaySeconds:
		return model.ZoneClassification{
			Zone:        model.ZoneLinearDecay,
			Description: fmt.Sprintf("Normal theta decay zone. %.0fs remaining, %.2f%% from strike.", ttlSeconds, dist),
		}
	case ttlSeconds > GammaWindowSeconds && dist > NearStrikePct:
		return model.ZoneClassification{
			Zone:        model.ZoneLockIn,
			Description: fmt.Sprintf("Lock-in zone. %.0fs remaining, price far from strike (%.2f%%), minimal movement expected.", ttlSeconds, dist),
		}
	case ttlSeconds <= GammaWindowSeconds && dist <= NearStrikePct:
		return model.ZoneClassification{
			Zone:        model.ZoneGammaRisk,
			Description: fmt.Sprintf("GAMMA RISK! %.0fs remaining, only %.2f%% from strike. Extreme sensitivity.", ttlSeconds, dist),
		}
	default:
		return model.ZoneClassification{
			Zone:        model.ZoneTransition,
			Description: fmt.Sprintf("Transition zone. %.0fs remaining, %.2f%% from strike.", ttlSeconds, dist),
		}
	}
}
