package pricing

import (
	"fmt"
	"time"

	"BinarySentinel/internal/model"
)

// DefaultVolatility is the annualised volatility assumed when none is given (60%, crypto).
const DefaultVolatility = 0.60

// Settings are the per-pricer defaults. A Settings value is copied into the Pricer and never
// changes afterwards, so one Pricer can be shared across goroutines.
type Settings struct {
	DefaultVolatility float64 `yaml:"default_volatility" json:"default_volatility"`
	DefaultRate       float64 `yaml:"rate" json:"rate"`
}

// DefaultSettings returns the 60% volatility, zero rate settings.
func DefaultSettings() Settings {
	return Settings{DefaultVolatility: DefaultVolatility}
}

// Pricer evaluates binary options using its settings for any parameter the caller omits.
type Pricer struct {
	settings Settings
	now      func() time.Time
}

// NewPricer creates a Pricer. A non-positive default volatility is rejected.
func NewPricer(s Settings) (*Pricer, error) {
	if err := checkFinite("default_volatility", s.DefaultVolatility); err != nil {
		return nil, err
	}
	if s.DefaultVolatility <= 0 {
		return nil, fmt.Errorf("default volatility must be positive: %w", ErrInvalidInput)
	}
	if err := checkFinite("rate", s.DefaultRate); err != nil {
		return nil, err
	}
	return &Pricer{settings: s, now: time.Now}, nil
}

// Settings returns a copy of the pricer settings.
func (p *Pricer) Settings() Settings { return p.settings }

// CallOption overrides a pricer default for a single call.
type CallOption func(*callOpts)

type callOpts struct {
	vol, rate       float64
	hasVol, hasRate bool
	at              time.Time
}

// WithVolatility sets the volatility for this call. Zero or negative values are honoured and
// clamped to MinVolatility by the pricing formulas.
func WithVolatility(v float64) CallOption {
	return func(o *callOpts) { o.vol, o.hasVol = v, true }
}

// WithRate sets the risk-free rate for this call.
func WithRate(r float64) CallOption {
	return func(o *callOpts) { o.rate, o.hasRate = r, true }
}

// At stamps the PricingResult with t instead of the current time.
func At(t time.Time) CallOption {
	return func(o *callOpts) { o.at = t }
}

// Inputs builds PricingInputs from the arguments, filling omitted values from the settings.
func (p *Pricer) Inputs(spot, strike, ttlSeconds float64, opts ...CallOption) model.PricingInputs {
	o := p.apply(opts)
	return model.PricingInputs{
		Spot:                spot,
		Strike:              strike,
		TimeToExpirySeconds: ttlSeconds,
		Volatility:          o.vol,
		Rate:                o.rate,
	}
}

func (p *Pricer) apply(opts []CallOption) callOpts {
	o := callOpts{}
	for _, fn := range opts {
		fn(&o)
	}
	if !o.hasVol {
		o.vol = p.settings.DefaultVolatility
	}
	if !o.hasRate {
		o.rate = p.settings.DefaultRate
	}
	return o
}

// CallPrice prices the Up contract.
func (p *Pricer) CallPrice(spot, strike, ttlSeconds float64, opts ...CallOption) (float64, error) {
	return BinaryCallPrice(p.Inputs(spot, strike, ttlSeconds, opts...))
}

// PutPrice prices the Down contract.
func (p *Pricer) PutPrice(spot, strike, ttlSeconds float64, opts ...CallOption) (float64, error) {
	return BinaryPutPrice(p.Inputs(spot, strike, ttlSeconds, opts...))
}

// Greeks returns the Up contract Greeks.
func (p *Pricer) Greeks(spot, strike, ttlSeconds float64, opts ...CallOption) (model.Greeks, error) {
	return CalculateGreeks(p.Inputs(spot, strike, ttlSeconds, opts...))
}

// FullGreeks returns the Up and Down Greeks.
func (p *Pricer) FullGreeks(spot, strike, ttlSeconds float64, opts ...CallOption) (model.GreeksSnapshot, error) {
	return FullGreeks(p.Inputs(spot, strike, ttlSeconds, opts...))
}

// Price runs the full evaluation: both prices, Up Greeks and zone.
func (p *Pricer) Price(spot, strike, ttlSeconds float64, opts ...CallOption) (model.PricingResult, error) {
	o := p.apply(opts)
	in := model.PricingInputs{
		Spot:                spot,
		Strike:              strike,
		TimeToExpirySeconds: ttlSeconds,
		Volatility:          o.vol,
		Rate:                o.rate,
	}
	snap, err := FullGreeks(in)
	if err != nil {
		return model.PricingResult{}, err
	}
	zone := ClassifyZone(ttlSeconds, spot, strike)

	ts := o.at
	if ts.IsZero() {
		ts = p.now()
	}
	return model.PricingResult{
		Timestamp:       ts,
		Inputs:          in,
		UpPrice:         snap.UpPrice,
		DownPrice:       snap.DownPrice,
		Greeks:          snap.Up,
		Zone:            zone.Zone,
		ZoneDescription: zone.Description,
	}, nil
}

// ImpliedVolatility solves for volatility using the pricer's default rate.
func (p *Pricer) ImpliedVolatility(marketPrice, spot, strike, ttlSeconds float64, isCall bool, opts ...IVOption) (float64, error) {
	opts = append([]IVOption{WithSolverRate(p.settings.DefaultRate)}, opts...)
	return ImpliedVolatility(marketPrice, spot, strike, ttlSeconds, isCall, opts...)
}
