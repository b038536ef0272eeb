package pricing

import (
	"fmt"
	"math"

	"BinarySentinel/internal/model"
)

// CalculateGreeks returns the analytic Greeks of the Up contract.
// A settled contract (time to expiry <= 0) has all Greeks equal to zero.
//
//	delta = n(d2) / (S·σ·√T)
//	gamma = -n(d2)·d1 / (S²·σ²·T)
//	theta = -[n(d2)·d1 / (2·T·σ·√T)] / SecondsPerYear   (per second)
//	vega  = -n(d2)·d1·√T / σ
func CalculateGreeks(in model.PricingInputs) (model.Greeks, error) {
	if err := Validate(in); err != nil {
		return model.Greeks{}, err
	}
	t := YearFraction(in.TimeToExpirySeconds)
	if t <= 0 {
		return model.Greeks{}, nil
	}

	vol := EffectiveVolatility(in.Volatility)
	sqrtT := math.Sqrt(t)
	d1, d2, err := auxiliaries(in, t)
	if err != nil {
		return model.Greeks{}, err
	}
	nd2 := normPDF(d2)
	s := in.Spot

	thetaAnnual := nd2 * d1 / (2 * t * vol * sqrtT)
	g := model.Greeks{
		Delta: nd2 / (s * vol * sqrtT),
		Gamma: -nd2 * d1 / (s * s * vol * vol * t),
		Theta: -thetaAnnual / SecondsPerYear,
		Vega:  -nd2 * d1 * sqrtT / vol,
	}
	for _, v := range []float64{g.Delta, g.Gamma, g.Theta, g.Vega} {
		if !isFinite(v) {
			return model.Greeks{}, fmt.Errorf("greeks not finite (%+v): %w", g, ErrInvalidInput)
		}
	}
	return g, nil
}

// FullGreeks prices both sides and derives the Down Greeks by negating the Up Greeks.
func FullGreeks(in model.PricingInputs) (model.GreeksSnapshot, error) {
	up, err := BinaryCallPrice(in)
	if err != nil {
		return model.GreeksSnapshot{}, err
	}
	g, err := CalculateGreeks(in)
	if err != nil {
		return model.GreeksSnapshot{}, err
	}
	return model.GreeksSnapshot{
		Inputs:    in,
		UpPrice:   up,
		DownPrice: 1 - up,
		Up:        g,
		Down:      g.Negate(),
	}, nil
}
