package position

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/pricing"
)

func dec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestManager_FillLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "position.json")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.False(t, m.State().Open())

	_, err = m.Fill("m1", 100, 0.40)
	require.NoError(t, err)
	s, err := m.Fill("m1", 100, 0.60)
	require.NoError(t, err)
	dec(t, "200", s.Size)
	dec(t, "0.5", s.AvgPrice)
	dec(t, "-100", s.Cash)

	s, err = m.Fill("m1", -50, 0.70)
	require.NoError(t, err)
	dec(t, "150", s.Size)
	dec(t, "0.5", s.AvgPrice)
	dec(t, "10", s.RealizedPnL)
	dec(t, "-65", s.Cash)

	// flips short
	s, err = m.Fill("m1", -200, 0.80)
	require.NoError(t, err)
	dec(t, "-50", s.Size)
	dec(t, "0.8", s.AvgPrice)
	dec(t, "55", s.RealizedPnL)
	dec(t, "-4", s.UnrealizedPnL(0.88))

	s, err = m.Close("m1", 1)
	require.NoError(t, err)
	assert.False(t, s.Open())
	dec(t, "45", s.RealizedPnL)
	dec(t, "45", s.Cash)
	assert.Equal(t, 4, s.Fills)

	// persisted
	reloaded, err := NewManager(path)
	require.NoError(t, err)
	dec(t, "45", reloaded.State().RealizedPnL)
	assert.Equal(t, "m1", reloaded.State().MarketID)
}

func TestManager_Errors(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "position.json"))
	require.NoError(t, err)

	_, err = m.Fill("m1", 0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidFill)
	_, err = m.Fill("m1", 10, 1.5)
	assert.ErrorIs(t, err, ErrInvalidFill)

	_, err = m.Close("m1", 1)
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = m.Fill("m1", 10, 0.5)
	require.NoError(t, err)
	_, err = m.Fill("m2", 10, 0.5)
	assert.ErrorIs(t, err, ErrOtherMarket)
	_, err = m.Close("m2", 0)
	assert.ErrorIs(t, err, ErrOtherMarket)
}

func TestManager_Hedge(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "position.json"))
	require.NoError(t, err)
	p, err := pricing.NewPricer(pricing.DefaultSettings())
	require.NoError(t, err)

	_, err = m.Hedge(p, 95000, 95000, 300)
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = m.Fill("m1", 1000, 0.5)
	require.NoError(t, err)
	h, err := m.Hedge(p, 95000, 95000, 300)
	require.NoError(t, err)

	g, err := p.Greeks(95000, 95000, 300)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, h.PositionSize)
	assert.InDelta(t, 1000*g.Delta, h.PositionDelta, 1e-12)
	assert.InDelta(t, -h.PositionDelta, h.UnderlyingToHedge, 1e-12)
}
