// Package surface evaluates binary prices, Greeks and zones over spot × time grids.
package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

// Metric selects the quantity evaluated at each grid point.
type Metric string

const (
	MetricPrice Metric = "price"
	MetricDelta Metric = "delta"
	MetricGamma Metric = "gamma"
	MetricTheta Metric = "theta"
	MetricVega  Metric = "vega"
)

// Metrics lists every supported metric.
var Metrics = []Metric{MetricPrice, MetricDelta, MetricGamma, MetricTheta, MetricVega}

// ParseMetric maps a name to a Metric.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// ErrInvalidGrid reports an unusable grid.
var ErrInvalidGrid = errors.New("surface: invalid grid")

// MaxSteps bounds each grid axis; a full grid holds at most MaxSteps² points.
const MaxSteps = 500

// Grid describes the evaluation domain. Times are seconds to expiry.
type Grid struct {
	Strike     float64 `json:"strike"`
	SpotMin    float64 `json:"spot_min"`
	SpotMax    float64 `json:"spot_max"`
	SpotSteps  int     `json:"spot_steps"`
	TimeMin    float64 `json:"time_min"`
	TimeMax    float64 `json:"time_max"`
	TimeSteps  int     `json:"time_steps"`
	Volatility float64 `json:"volatility"`
	Rate       float64 `json:"rate"`
}

// DefaultGrid spans ±2% around strike over the last 15 minutes.
func DefaultGrid(strike, vol float64) Grid {
	return Grid{
		Strike:     strike,
		SpotMin:    strike * 0.98,
		SpotMax:    strike * 1.02,
		SpotSteps:  41,
		TimeMin:    10,
		TimeMax:    900,
		TimeSteps:  30,
		Volatility: vol,
	}
}

// Validate checks the grid bounds.
func (g Grid) Validate() error {
	switch {
	case !(g.Strike > 0):
		return fmt.Errorf("%w: strike must be positive", ErrInvalidGrid)
	case !(g.SpotMin > 0) || g.SpotMax < g.SpotMin:
		return fmt.Errorf("%w: spot range [%v, %v]", ErrInvalidGrid, g.SpotMin, g.SpotMax)
	case g.TimeMin < 0 || g.TimeMax < g.TimeMin:
		return fmt.Errorf("%w: time range [%v, %v]", ErrInvalidGrid, g.TimeMin, g.TimeMax)
	case g.SpotSteps < 1 || g.TimeSteps < 1:
		return fmt.Errorf("%w: steps must be at least 1", ErrInvalidGrid)
	case g.SpotSteps > MaxSteps || g.TimeSteps > MaxSteps:
		return fmt.Errorf("%w: steps %dx%d exceed %d", ErrInvalidGrid, g.SpotSteps, g.TimeSteps, MaxSteps)
	case math.IsNaN(g.Volatility) || math.IsInf(g.Volatility, 0):
		return fmt.Errorf("%w: volatility must be finite", ErrInvalidGrid)
	}
	return nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

// Surface holds one value per (time, spot) point. Values[i][j] is at Times[i], Spots[j].
type Surface struct {
	Metric Metric      `json:"metric"`
	Spots  []float64   `json:"spots"`
	Times  []float64   `json:"times"`
	Values [][]float64 `json:"values"`
}

// Evaluate computes metric at every grid point. Rows run in parallel.
func Evaluate(ctx context.Context, g Grid, metric Metric) (Surface, error) {
	if err := g.Validate(); err != nil {
		return Surface{}, err
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return Surface{}, err
	}

	s := Surface{
		Metric: metric,
		Spots:  Linspace(g.SpotMin, g.SpotMax, g.SpotSteps),
		Times:  Linspace(g.TimeMin, g.TimeMax, g.TimeSteps),
	}
	s.Values = make([][]float64, len(s.Times))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, ttl := range s.Times {
		i, ttl := i, ttl
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]float64, len(s.Spots))
			for j, spot := range s.Spots {
				v, err := point(g.inputs(spot, ttl), metric)
				if err != nil {
					return fmt.Errorf("spot %v ttl %v: %w", spot, ttl, err)
				}
				row[j] = v
			}
			s.Values[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Surface{}, err
	}
	return s, nil
}

func (g Grid) inputs(spot, ttl float64) model.PricingInputs {
	return model.PricingInputs{
		Spot:                spot,
		Strike:              g.Strike,
		TimeToExpirySeconds: ttl,
		Volatility:          g.Volatility,
		Rate:                g.Rate,
	}
}

func point(in model.PricingInputs, metric Metric) (float64, error) {
	if metric == MetricPrice {
		return pricing.BinaryCallPrice(in)
	}
	gr, err := pricing.CalculateGreeks(in)
	if err != nil {
		return 0, err
	}
	switch metric {
	case MetricDelta:
		return gr.Delta, nil
	case MetricGamma:
		return gr.Gamma, nil
	case MetricTheta:
		return gr.Theta, nil
	default:
		return gr.Vega, nil
	}
}

// ZoneMap classifies every grid point. Rows follow Times, columns follow Spots.
func ZoneMap(g Grid) ([][]model.Zone, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	spots := Linspace(g.SpotMin, g.SpotMax, g.SpotSteps)
	times := Linspace(g.TimeMin, g.TimeMax, g.TimeSteps)
	out := make([][]model.Zone, len(times))
	for i, ttl := range times {
		out[i] = make([]model.Zone, len(spots))
		for j, spot := range spots {
			out[i][j] = pricing.ClassifyZone(ttl, spot, g.Strike).Zone
		}
	}
	return out, nil
}

// ZoneCounts tallies points per zone.
func ZoneCounts(zones [][]model.Zone) map[model.Zone]int {
	counts := make(map[model.Zone]int, len(model.Zones))
	for _, row := range zones {
		for _, z := range row {
			counts[z]++
		}
	}
	return counts
}

type csvPoint struct {
	TimeToExpiry float64 `csv:"time_to_expiry_seconds"`
	Spot         float64 `csv:"spot"`
	Metric       string  `csv:"metric"`
	Value        float64 `csv:"value"`
}

// WriteCSV writes the surface in long format, one row per point.
func WriteCSV(w io.Writer, s Surface) error {
	rows := make([]csvPoint, 0, len(s.Times)*len(s.Spots))
	for i, ttl := range s.Times {
		for j, spot := range s.Spots {
			rows = append(rows, csvPoint{
				TimeToExpiry: ttl,
				Spot:         spot,
				Metric:       string(s.Metric),
				Value:        s.Values[i][j],
			})
		}
	}
	return gocsv.Marshal(rows, w)
}
