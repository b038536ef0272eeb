package risk

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
)

func newPricer(t *testing.T) *pricing.Pricer {
	t.Helper()
	p, err := pricing.NewPricer(pricing.DefaultSettings())
	require.NoError(t, err)
	return p
}

func TestGammaRiskScore(t *testing.T) {
	tests := []struct {
		ttl, dist, want float64
	}{
		{0, 0, 100},
		{900, 0, 0},
		{1800, 0, 0},
		{450, 0, 50},
		{0, 1, 0},
		{0, -1, 0},
		{0, 0.5, 50},
		{0, -0.5, 50},
		{450, 0.5, 25},
		{0, 3, 0},
		{-10, 0, 100},
	}
	for _, tt := range tests {
		got := GammaRiskScore(tt.ttl, tt.dist)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ttl=%.0f dist=%.2f: expected %.2f, got %.4f", tt.ttl, tt.dist, tt.want, got)
		}
	}
}

func TestRecommend_AllBranches(t *testing.T) {
	tests := []struct {
		zone  model.Zone
		dist  float64
		score float64
		level string
		text  string
	}{
		{model.ZoneGammaRisk, 0.1, 95, LevelHighRisk, "HIGH RISK"},
		{model.ZoneLockIn, 1.2, 71, LevelHighRisk, "HIGH RISK"},
		{model.ZoneLockIn, 1.2, 10, LevelLockIn, "Up likely to win"},
		{model.ZoneLockIn, -1.2, 10, LevelLockIn, "Down likely to win"},
		{model.ZoneLinearDecay, 0, 70, LevelNormal, "NORMAL"},
		{model.ZoneTransition, 0.2, 30, LevelTransition, "TRANSITION"},
		{model.ZoneGammaRisk, 0.4, 60, LevelTransition, "TRANSITION"},
	}
	for _, tt := range tests {
		level, text := Recommend(tt.zone, tt.dist, tt.score)
		if level != tt.level {
			t.Errorf("zone=%s score=%.0f: expected level %q, got %q", tt.zone, tt.score, tt.level, level)
		}
		if !strings.Contains(text, tt.text) {
			t.Errorf("zone=%s score=%.0f: expected %q in %q", tt.zone, tt.score, tt.text, text)
		}
	}
}

func TestBuildProfile_LockIn(t *testing.T) {
	p := newPricer(t)
	prof, err := BuildProfile(p, 95950, 95000, 120)
	require.NoError(t, err)

	assert.Equal(t, model.ZoneLockIn, prof.Zone)
	assert.Equal(t, model.InTheMoney, prof.Moneyness)
	assert.InDelta(t, 1.0, prof.DistanceToStrikePct, 1e-9)
	assert.InDelta(t, 0.0, prof.GammaRiskScore, 1e-9)
	assert.Equal(t, LevelLockIn, prof.RecommendationLevel)
	assert.Contains(t, prof.Recommendation, "Up")
	assert.InDelta(t, 1.0, prof.UpPrice+prof.DownPrice, 1e-12)
}

func TestBuildProfile_GammaRisk(t *testing.T) {
	p := newPricer(t)
	prof, err := BuildProfile(p, 95010, 95000, 20)
	require.NoError(t, err)

	assert.Equal(t, model.ZoneGammaRisk, prof.Zone)
	assert.Greater(t, prof.GammaRiskScore, HighRiskScore)
	assert.Equal(t, LevelHighRisk, prof.RecommendationLevel)
}

func TestBuildProfile_BelowStrike(t *testing.T) {
	p := newPricer(t)
	prof, err := BuildProfile(p, 94000, 95000, 120, pricing.WithVolatility(0.9))
	require.NoError(t, err)

	assert.Equal(t, model.OutOfTheMoney, prof.Moneyness)
	assert.Less(t, prof.DistanceToStrikePct, 0.0)
	assert.Contains(t, prof.Recommendation, "Down")
	assert.Equal(t, 0.9, prof.Inputs.Volatility)
}

func TestBuildProfile_ThetaPerMinute(t *testing.T) {
	p := newPricer(t)
	prof, err := BuildProfile(p, 95100, 95000, 600)
	require.NoError(t, err)

	assert.Equal(t, model.ZoneLinearDecay, prof.Zone)
	assert.InDelta(t, prof.ThetaPerSecond*60, prof.ThetaPerMinute, 1e-15)
	assert.Equal(t, prof.Delta, prof.DollarDelta)
}

func TestBuildProfile_Expired(t *testing.T) {
	p := newPricer(t)
	prof, err := BuildProfile(p, 95000, 95000, 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, prof.UpPrice)
	assert.Equal(t, 0.0, prof.Delta)
	assert.Equal(t, 100.0, prof.GammaRiskScore)
}

func TestBuildProfile_InvalidInput(t *testing.T) {
	p := newPricer(t)
	_, err := BuildProfile(p, 95000, -1, 300)
	assert.True(t, errors.Is(err, pricing.ErrInvalidInput))
}
