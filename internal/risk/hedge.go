package risk

import (
	"math"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

// DeltaHedge computes the underlying quantity that offsets the delta of positionSize Up
// contracts (negative when short).
func DeltaHedge(p *pricing.Pricer, positionSize, spot, strike, ttlSeconds float64, opts ...pricing.CallOption) (model.HedgeSummary, error) {
	g, err := p.Greeks(spot, strike, ttlSeconds, opts...)
	if err != nil {
		return model.HedgeSummary{}, err
	}
	return HedgeFromGreeks(positionSize, spot, g), nil
}

// HedgeFromGreeks is DeltaHedge for Greeks that are already known.
func HedgeFromGreeks(positionSize, spot float64, g model.Greeks) model.HedgeSummary {
	positionDelta := positionSize * g.Delta
	toHedge := -positionDelta
	gammaExposure := positionSize * g.Gamma
	return model.HedgeSummary{
		PositionSize:       positionSize,
		UnitDelta:          g.Delta,
		PositionDelta:      positionDelta,
		UnderlyingToHedge:  toHedge,
		HedgeValue:         toHedge * spot,
		GammaExposure:      gammaExposure,
		RebalancePerDollar: math.Abs(gammaExposure),
	}
}
