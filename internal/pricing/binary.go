package pricing

import (
	"fmt"
	"math"

	"BinarySentinel/internal/model"
)

const (
	// SecondsPerYear is the Julian year length used to annualise time to expiry.
	SecondsPerYear = 365.25 * 24 * 60 * 60

	// MinVolatility replaces a non-positive volatility so d1/d2 stay finite.
	// The resulting price is close to a step function; it is not a real volatility.
	MinVolatility = 1e-4
)

// YearFraction converts seconds to years.
func YearFraction(seconds float64) float64 {
	return seconds / SecondsPerYear
}

// EffectiveVolatility returns vol, or MinVolatility when vol <= 0.
func EffectiveVolatility(vol float64) float64 {
	if vol <= 0 {
		return MinVolatility
	}
	return vol
}

// D1D2 computes the Black-Scholes auxiliaries for time t in years.
// At or past expiry both are +Inf when spot >= strike and -Inf otherwise.
func D1D2(spot, strike, t, vol, rate float64) (d1, d2 float64) {
	if t <= 0 {
		if spot >= strike {
			return math.Inf(1), math.Inf(1)
		}
		return math.Inf(-1), math.Inf(-1)
	}
	vol = EffectiveVolatility(vol)
	sqrtT := math.Sqrt(t)
	d1 = (math.Log(spot/strike) + (rate+0.5*vol*vol)*t) / (vol * sqrtT)
	d2 = d1 - vol*sqrtT
	return d1, d2
}

// BinaryCallPrice returns the value of the Up contract, in [0, 1].
func BinaryCallPrice(in model.PricingInputs) (float64, error) {
	if err := Validate(in); err != nil {
		return 0, err
	}
	t := YearFraction(in.TimeToExpirySeconds)
	if t <= 0 {
		return settlement(in.Spot, in.Strike), nil
	}
	_, d2, err := auxiliaries(in, t)
	if err != nil {
		return 0, err
	}
	return clamp(normCDF(d2), 0, 1), nil
}

// auxiliaries is D1D2 for validated inputs with t > 0. Finite but extreme inputs can overflow
// (σ² for σ near 1e200); those are rejected rather than priced from NaN.
func auxiliaries(in model.PricingInputs, t float64) (d1, d2 float64, err error) {
	d1, d2 = D1D2(in.Spot, in.Strike, t, in.Volatility, in.Rate)
	if !isFinite(d1) || !isFinite(d2) {
		return 0, 0, fmt.Errorf("d1=%v d2=%v for volatility=%v: %w", d1, d2, in.Volatility, ErrInvalidInput)
	}
	return d1, d2, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// BinaryPutPrice returns the value of the Down contract, 1 - BinaryCallPrice.
func BinaryPutPrice(in model.PricingInputs) (float64, error) {
	call, err := BinaryCallPrice(in)
	if err != nil {
		return 0, err
	}
	return clamp(1-call, 0, 1), nil
}

// Validate checks the pricing preconditions: finite inputs, positive spot and strike.
// Negative time to expiry is accepted and treated as expired.
func Validate(in model.PricingInputs) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"spot", in.Spot},
		{"strike", in.Strike},
		{"time_to_expiry", in.TimeToExpirySeconds},
		{"volatility", in.Volatility},
		{"rate", in.Rate},
	} {
		if err := checkFinite(f.name, f.v); err != nil {
			return err
		}
	}
	if in.Spot <= 0 {
		return invalid("spot", in.Spot)
	}
	if in.Strike <= 0 {
		return invalid("strike", in.Strike)
	}
	return nil
}

// settlement is the payout of the Up contract at expiry.
func settlement(spot, strike float64) float64 {
	if spot >= strike {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
