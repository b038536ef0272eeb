package pricing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/model"
)

func newTestPricer(t *testing.T) *Pricer {
	t.Helper()
	p, err := NewPricer(DefaultSettings())
	require.NoError(t, err)
	return p
}

func TestNewPricer_RejectsBadVolatility(t *testing.T) {
	for _, vol := range []float64{0, -0.2} {
		_, err := NewPricer(Settings{DefaultVolatility: vol})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
}

func TestPricer_Price(t *testing.T) {
	p := newTestPricer(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := p.Price(95000, 95000, 300, At(at))
	require.NoError(t, err)

	assert.Equal(t, at, res.Timestamp)
	assert.Equal(t, 0.6, res.Inputs.Volatility)
	assert.InDelta(t, 0.5, res.UpPrice, 1e-3)
	assert.InDelta(t, 1.0, res.UpPrice+res.DownPrice, 1e-12)
	assert.Equal(t, model.ZoneLinearDecay, res.Zone)
	assert.Contains(t, res.ZoneDescription, "300s")
	assert.Greater(t, res.Greeks.Delta, 0.0)
}

func TestPricer_DefaultsAndOverrides(t *testing.T) {
	p, err := NewPricer(Settings{DefaultVolatility: 0.8, DefaultRate: 0.01})
	require.NoError(t, err)

	in := p.Inputs(95000, 95000, 300)
	assert.Equal(t, 0.8, in.Volatility)
	assert.Equal(t, 0.01, in.Rate)

	in = p.Inputs(95000, 95000, 300, WithVolatility(0), WithRate(0))
	assert.Equal(t, 0.0, in.Volatility)
	assert.Equal(t, 0.0, in.Rate)

	withDefault, err := p.CallPrice(95100, 95000, 300)
	require.NoError(t, err)
	explicit, err := BinaryCallPrice(model.PricingInputs{Spot: 95100, Strike: 95000, TimeToExpirySeconds: 300, Volatility: 0.8, Rate: 0.01})
	require.NoError(t, err)
	assert.Equal(t, explicit, withDefault)

	put, err := p.PutPrice(95100, 95000, 300)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, withDefault+put, 1e-12)
}

func TestPricer_PriceInvalidInput(t *testing.T) {
	p := newTestPricer(t)
	_, err := p.Price(95000, 0, 300)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPricer_ImpliedVolatility(t *testing.T) {
	p := newTestPricer(t)
	call, err := p.CallPrice(95200, 95000, 300, WithVolatility(0.75))
	require.NoError(t, err)
	vol, err := p.ImpliedVolatility(call, 95200, 95000, 300, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, vol, 1e-4)
}

func TestPricer_ConcurrentUse(t *testing.T) {
	p := newTestPricer(t)
	want, err := p.Price(95100, 95000, 240, At(time.Unix(0, 0)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Price(95100, 95000, 240, At(time.Unix(0, 0)))
			if err != nil {
				errs <- err
				return
			}
			if got != want {
				errs <- errors.New("result differs between goroutines")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
