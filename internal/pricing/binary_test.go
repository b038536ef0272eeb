package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/model"
)

func inputs(spot, strike, ttl, vol float64) model.PricingInputs {
	return model.PricingInputs{Spot: spot, Strike: strike, TimeToExpirySeconds: ttl, Volatility: vol}
}

func TestSecondsPerYear(t *testing.T) {
	assert.Equal(t, 31557600.0, SecondsPerYear)
}

func TestBinaryPrices_SumToOne(t *testing.T) {
	for _, spot := range []float64{90000, 94000, 94990, 95000, 95010, 96000, 100000} {
		for _, ttl := range []float64{1, 30, 60, 180, 300, 900, 86400} {
			for _, vol := range []float64{0.05, 0.3, 0.6, 1.5, 4} {
				in := inputs(spot, 95000, ttl, vol)
				call, err := BinaryCallPrice(in)
				require.NoError(t, err)
				put, err := BinaryPutPrice(in)
				require.NoError(t, err)

				assert.InDelta(t, 1.0, call+put, 1e-9, "spot=%v ttl=%v vol=%v", spot, ttl, vol)
				assert.GreaterOrEqual(t, call, 0.0)
				assert.LessOrEqual(t, call, 1.0)
			}
		}
	}
}

func TestBinaryCallPrice_AtExpirySettles(t *testing.T) {
	tests := []struct {
		name string
		spot float64
		ttl  float64
		want float64
	}{
		{"above strike", 95001, 0, 1},
		{"at strike", 95000, 0, 1},
		{"below strike", 94999, 0, 0},
		{"past expiry above", 96000, -5, 1},
		{"past expiry below", 94000, -5, 0},
	}
	for _, tt := range tests {
		for _, vol := range []float64{0, 0.6, 3} {
			call, err := BinaryCallPrice(inputs(tt.spot, 95000, tt.ttl, vol))
			require.NoError(t, err)
			assert.Equal(t, tt.want, call, "%s vol=%v", tt.name, vol)

			put, err := BinaryPutPrice(inputs(tt.spot, 95000, tt.ttl, vol))
			require.NoError(t, err)
			assert.Equal(t, 1-tt.want, put, "%s vol=%v", tt.name, vol)
		}
	}
}

func TestBinaryCallPrice_MonotoneInSpot(t *testing.T) {
	for _, ttl := range []float64{5, 60, 300, 900} {
		prev := -1.0
		for spot := 93000.0; spot <= 97000; spot += 25 {
			call, err := BinaryCallPrice(inputs(spot, 95000, ttl, 0.6))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, call, prev, "ttl=%v spot=%v", ttl, spot)
			prev = call
		}
	}
}

func TestBinaryCallPrice_AtTheMoney(t *testing.T) {
	call, err := BinaryCallPrice(inputs(95000, 95000, 300, 0.6))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, call, 1e-3)
	// d2 = -σ√T/2 is slightly negative, so the Up side is marginally below one half.
	assert.Less(t, call, 0.5)
}

func TestBinaryCallPrice_ZeroVolatilityClamped(t *testing.T) {
	above, err := BinaryCallPrice(inputs(95100, 95000, 300, 0))
	require.NoError(t, err)
	below, err := BinaryCallPrice(inputs(94900, 95000, 300, -1))
	require.NoError(t, err)

	assert.False(t, math.IsNaN(above))
	assert.InDelta(t, 1.0, above, 1e-9)
	assert.InDelta(t, 0.0, below, 1e-9)
}

func TestBinaryCallPrice_WithRate(t *testing.T) {
	noRate, err := BinaryCallPrice(inputs(95000, 95000, 86400*30, 0.6))
	require.NoError(t, err)
	in := inputs(95000, 95000, 86400*30, 0.6)
	in.Rate = 0.05
	withRate, err := BinaryCallPrice(in)
	require.NoError(t, err)
	assert.Greater(t, withRate, noRate)
}

func TestBinaryCallPrice_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   model.PricingInputs
	}{
		{"zero strike", inputs(95000, 0, 300, 0.6)},
		{"negative strike", inputs(95000, -1, 300, 0.6)},
		{"zero spot", inputs(0, 95000, 300, 0.6)},
		{"nan spot", inputs(math.NaN(), 95000, 300, 0.6)},
		{"inf ttl", inputs(95000, 95000, math.Inf(1), 0.6)},
		{"nan vol", inputs(95000, 95000, 300, math.NaN())},
	}
	for _, tt := range tests {
		_, err := BinaryCallPrice(tt.in)
		assert.True(t, errors.Is(err, ErrInvalidInput), tt.name)
		_, err = BinaryPutPrice(tt.in)
		assert.True(t, errors.Is(err, ErrInvalidInput), tt.name)
	}
}

func TestD1D2(t *testing.T) {
	d1, d2 := D1D2(95000, 95000, 0, 0.6, 0)
	assert.True(t, math.IsInf(d1, 1))
	assert.True(t, math.IsInf(d2, 1))

	d1, d2 = D1D2(94000, 95000, 0, 0.6, 0)
	assert.True(t, math.IsInf(d1, -1))
	assert.True(t, math.IsInf(d2, -1))

	tYears := YearFraction(300)
	d1, d2 = D1D2(95000, 95000, tYears, 0.6, 0)
	assert.InDelta(t, 0.6*math.Sqrt(tYears)/2, d1, 1e-12)
	assert.InDelta(t, d1-0.6*math.Sqrt(tYears), d2, 1e-12)
}

func TestBinaryCallPrice_OverflowingVolatilityRejected(t *testing.T) {
	in := inputs(95000, 95000, 300, 1e200)
	_, err := BinaryCallPrice(in)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = BinaryPutPrice(in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BinaryCallPrice(inputs(94000, 95000, 300, 1e200))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
