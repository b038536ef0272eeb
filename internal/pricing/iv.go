package pricing

import (
	"math"

	"BinarySentinel/internal/model"
)

// Solver defaults and bounds.
const (
	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-6
	DefaultInitialGuess  = 0.5
	MinImpliedVol        = 0.01
	MaxImpliedVol        = 5.0
	minVega              = 1e-10
)

type ivConfig struct {
	maxIterations int
	tolerance     float64
	initialGuess  float64
	rate          float64
}

// IVOption tunes ImpliedVolatility.
type IVOption func(*ivConfig)

// WithMaxIterations caps the Newton iterations. Values below 1 are ignored.
func WithMaxIterations(n int) IVOption {
	return func(c *ivConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithTolerance sets the absolute price tolerance. Non-positive values are ignored.
func WithTolerance(tol float64) IVOption {
	return func(c *ivConfig) {
		if tol > 0 {
			c.tolerance = tol
		}
	}
}

// WithInitialGuess sets the starting volatility, clamped to [MinImpliedVol, MaxImpliedVol].
func WithInitialGuess(vol float64) IVOption {
	return func(c *ivConfig) {
		c.initialGuess = clamp(vol, MinImpliedVol, MaxImpliedVol)
	}
}

// WithSolverRate sets the risk-free rate used while solving.
func WithSolverRate(r float64) IVOption {
	return func(c *ivConfig) { c.rate = r }
}

// ImpliedVolatility inverts an observed Up (isCall) or Down price into an annualised volatility
// using Newton-Raphson. Each step is clamped to [MinImpliedVol, MaxImpliedVol].
//
// When no estimate is found the returned error is a *NotConvergedError matching
// ErrNotConverged and the returned volatility must not be used.
func ImpliedVolatility(marketPrice, spot, strike, ttlSeconds float64, isCall bool, opts ...IVOption) (float64, error) {
	cfg := ivConfig{
		maxIterations: DefaultMaxIterations,
		tolerance:     DefaultTolerance,
		initialGuess:  DefaultInitialGuess,
	}
	for _, o := range opts {
		o(&cfg)
	}

	if err := checkFinite("market_price", marketPrice); err != nil {
		return 0, err
	}
	if marketPrice < 0 || marketPrice > 1 {
		return 0, invalid("market_price", marketPrice)
	}
	in := model.PricingInputs{
		Spot:                spot,
		Strike:              strike,
		TimeToExpirySeconds: ttlSeconds,
		Volatility:          cfg.initialGuess,
		Rate:                cfg.rate,
	}
	if err := Validate(in); err != nil {
		return 0, err
	}
	t := YearFraction(ttlSeconds)
	if t <= 0 {
		return 0, &NotConvergedError{Reason: ReasonExpired, LastSigma: cfg.initialGuess}
	}
	sqrtT := math.Sqrt(t)

	sigma := cfg.initialGuess
	for i := 1; i <= cfg.maxIterations; i++ {
		in.Volatility = sigma
		up, err := BinaryCallPrice(in)
		if err != nil {
			return 0, err
		}
		g, err := CalculateGreeks(in)
		if err != nil {
			return 0, err
		}

		price := up
		// Reported vega carries a sqrt(T) factor; the price derivative does not.
		slope := g.Vega / sqrtT
		if !isCall {
			price = 1 - up
			slope = -slope
		}

		diff := price - marketPrice
		if math.Abs(diff) < cfg.tolerance {
			return sigma, nil
		}
		if math.Abs(slope) < minVega {
			return 0, &NotConvergedError{Reason: ReasonVegaTooSmall, Iterations: i, LastSigma: sigma}
		}
		sigma = clamp(sigma-diff/slope, MinImpliedVol, MaxImpliedVol)
	}
	return 0, &NotConvergedError{Reason: ReasonMaxIterations, Iterations: cfg.maxIterations, LastSigma: sigma}
}
