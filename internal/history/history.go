// Package history replays recorded market samples through the pricer.
package history

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp reads ISO-8601 times with or without a zone. Zoneless values are UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognised format", s)
}

func (t Timestamp) MarshalCSV() (string, error) {
	return t.UTC().Format(time.RFC3339Nano), nil
}

// Sample is one row of a recorded session. Up and Down are the yes and no columns.
// Strike is optional and 0 in recordings that predate it.
type Sample struct {
	Timestamp           Timestamp `csv:"timestamp"`
	Spot                float64   `csv:"btc_price"`
	UpPrice             float64   `csv:"yes_price"`
	DownPrice           float64   `csv:"no_price"`
	UpBid               float64   `csv:"yes_bid"`
	UpAsk               float64   `csv:"yes_ask"`
	DownBid             float64   `csv:"no_bid"`
	DownAsk             float64   `csv:"no_ask"`
	TimeToExpirySeconds float64   `csv:"time_to_expiry_seconds"`
	MarketID            string    `csv:"market_id"`
	Strike              float64   `csv:"strike"`
}

// FromMarketSample converts a live sample into the recorded row shape.
func FromMarketSample(s model.MarketSample) Sample {
	return Sample{
		Timestamp:           Timestamp{s.Time},
		Spot:                s.Spot,
		UpPrice:             s.Quote.UpPrice,
		DownPrice:           s.Quote.DownPrice,
		UpBid:               s.Quote.UpBid,
		UpAsk:               s.Quote.UpAsk,
		DownBid:             s.Quote.DownBid,
		DownAsk:             s.Quote.DownAsk,
		TimeToExpirySeconds: s.TimeToExpirySeconds,
		MarketID:            s.Market.ID,
		Strike:              s.Strike,
	}
}

// Row is a sample enriched with model prices and Greeks.
type Row struct {
	Timestamp           Timestamp  `csv:"timestamp"`
	MarketID            string     `csv:"market_id"`
	Spot                float64    `csv:"spot"`
	Strike              float64    `csv:"strike"`
	TimeToExpirySeconds float64    `csv:"time_to_expiry_seconds"`
	MarketUp            float64    `csv:"market_up"`
	MarketDown          float64    `csv:"market_down"`
	ModelUp             float64    `csv:"model_up"`
	ModelDown           float64    `csv:"model_down"`
	Delta               float64    `csv:"delta"`
	Gamma               float64    `csv:"gamma"`
	Theta               float64    `csv:"theta"`
	Vega                float64    `csv:"vega"`
	Zone                model.Zone `csv:"zone"`
	ImpliedVol          *float64   `csv:"implied_vol"`
	Edge                float64    `csv:"edge"`
}

// ReadCSV decodes recorded samples.
func ReadCSV(r io.Reader) ([]Sample, error) {
	var samples []Sample
	if err := gocsv.Unmarshal(r, &samples); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	return samples, nil
}

// ReadFile decodes recorded samples from path.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteSamples encodes samples in the recorded schema.
func WriteSamples(w io.Writer, samples []Sample) error {
	return gocsv.Marshal(samples, w)
}

// AppendSamples encodes samples without the header row.
func AppendSamples(w io.Writer, samples []Sample) error {
	return gocsv.MarshalWithoutHeaders(samples, w)
}

// WriteCSV encodes analysed rows.
func WriteCSV(w io.Writer, rows []Row) error {
	return gocsv.Marshal(rows, w)
}

// Analyze prices every sample. A positive strike applies to all markets; otherwise each row
// uses its recorded strike, or the spot of its market's first row when none was recorded.
// Rows with a non-positive spot are skipped.
func Analyze(samples []Sample, strike float64, p *pricing.Pricer) ([]Row, error) {
	rows := make([]Row, 0, len(samples))
	opens := make(map[string]float64)

	for _, s := range samples {
		if !(s.Spot > 0) {
			continue
		}
		k := strike
		if k <= 0 && s.Strike > 0 {
			k = s.Strike
		}
		if k <= 0 {
			open, ok := opens[s.MarketID]
			if !ok {
				open = s.Spot
				opens[s.MarketID] = open
			}
			k = open
		}

		res, err := p.Price(s.Spot, k, s.TimeToExpirySeconds, pricing.At(s.Timestamp.Time))
		if err != nil {
			return nil, fmt.Errorf("price row at %s: %w", s.Timestamp.Format(time.RFC3339), err)
		}

		row := Row{
			Timestamp:           s.Timestamp,
			MarketID:            s.MarketID,
			Spot:                s.Spot,
			Strike:              k,
			TimeToExpirySeconds: s.TimeToExpirySeconds,
			MarketUp:            s.UpPrice,
			MarketDown:          s.DownPrice,
			ModelUp:             res.UpPrice,
			ModelDown:           res.DownPrice,
			Delta:               res.Greeks.Delta,
			Gamma:               res.Greeks.Gamma,
			Theta:               res.Greeks.Theta,
			Vega:                res.Greeks.Vega,
			Zone:                res.Zone,
			Edge:                s.UpPrice - res.UpPrice,
		}
		if iv, err := p.ImpliedVolatility(s.UpPrice, s.Spot, k, s.TimeToExpirySeconds, true); err == nil {
			row.ImpliedVol = &iv
		} else if !errors.Is(err, pricing.ErrNotConverged) && !errors.Is(err, pricing.ErrInvalidInput) {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Summary aggregates an analysed session.
type Summary struct {
	Rows        int                `json:"rows"`
	Markets     int                `json:"markets"`
	MeanEdge    float64            `json:"mean_edge"`
	MeanAbsEdge float64            `json:"mean_abs_edge"`
	MaxAbsEdge  float64            `json:"max_abs_edge"`
	MedianIV    float64            `json:"median_iv"`
	IVConverged int                `json:"iv_converged"`
	ZoneCounts  map[model.Zone]int `json:"zone_counts"`
}

// Summarize computes edge and implied-vol statistics over rows.
func Summarize(rows []Row) Summary {
	sum := Summary{Rows: len(rows), ZoneCounts: make(map[model.Zone]int)}
	if len(rows) == 0 {
		return sum
	}

	markets := make(map[string]struct{})
	edges := make(stats.Float64Data, 0, len(rows))
	absEdges := make(stats.Float64Data, 0, len(rows))
	var ivs stats.Float64Data
	for _, r := range rows {
		markets[r.MarketID] = struct{}{}
		sum.ZoneCounts[r.Zone]++
		edges = append(edges, r.Edge)
		absEdges = append(absEdges, math.Abs(r.Edge))
		if r.ImpliedVol != nil {
			ivs = append(ivs, *r.ImpliedVol)
		}
	}
	sum.Markets = len(markets)
	sum.MeanEdge, _ = edges.Mean()
	sum.MeanAbsEdge, _ = absEdges.Mean()
	sum.MaxAbsEdge, _ = absEdges.Max()
	sum.IVConverged = len(ivs)
	if len(ivs) > 0 {
		sum.MedianIV, _ = ivs.Median()
	}
	return sum
}
