package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/risk"
	"BinarySentinel/internal/surface"
)

type staticSnapshot struct {
	snap model.MonitorSnapshot
	ok   bool
}

func (s staticSnapshot) Snapshot() (model.MonitorSnapshot, bool) { return s.snap, s.ok }

func newTestServer(t *testing.T, snap SnapshotSource) (*Server, *pricing.Pricer) {
	t.Helper()
	p, err := pricing.NewPricer(pricing.DefaultSettings())
	require.NoError(t, err)
	return New(":0", p, snap, NewMetrics()), p
}

func get(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestPriceEndpoint(t *testing.T) {
	s, p := newTestServer(t, nil)
	rec := get(t, s, "/api/v1/price?spot=95300&strike=95000&ttl=420")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res model.PricingResult
	decode(t, rec, &res)
	want, err := p.CallPrice(95300, 95000, 420)
	require.NoError(t, err)
	assert.InDelta(t, want, res.UpPrice, 1e-12)
	assert.InDelta(t, 1.0, res.UpPrice+res.DownPrice, 1e-12)
	assert.Equal(t, model.ZoneLinearDecay, res.Zone)
	assert.Equal(t, pricing.DefaultVolatility, res.Inputs.Volatility)
}

func TestPriceEndpointOverridesVolatility(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/v1/price?spot=95300&strike=95000&ttl=420&vol=0.8&rate=0.05")
	require.Equal(t, http.StatusOK, rec.Code)

	var res model.PricingResult
	decode(t, rec, &res)
	assert.Equal(t, 0.8, res.Inputs.Volatility)
	assert.Equal(t, 0.05, res.Inputs.Rate)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, url := range []string{
		"/api/v1/price?strike=95000&ttl=420",
		"/api/v1/price?spot=abc&strike=95000&ttl=420",
		"/api/v1/price?spot=-1&strike=95000&ttl=420",
		"/api/v1/greeks?spot=95000&strike=0&ttl=420",
		"/api/v1/zone?spot=NaN&strike=95000&ttl=420",
		"/api/v1/hedge?spot=95000&strike=95000&ttl=420",
		"/api/v1/iv?spot=95000&strike=95000&ttl=420&price=1.5",
		"/api/v1/iv?spot=95000&strike=95000&ttl=420&price=0.4&side=sideways",
		"/api/v1/surface?strike=95000&metric=rho",
		"/api/v1/surface?strike=95000&spot_steps=0",
		"/api/v1/surface?strike=95000&spot_steps=2000&time_steps=2000",
		"/api/v1/surface?strike=95000&time_steps=501",
		"/api/v1/price?spot=95000&strike=95000&ttl=300&vol=1e200",
		"/api/v1/greeks?spot=95000&strike=95000&ttl=300&vol=1e200",
		"/api/v1/iv?spot=95000&strike=95000&ttl=420&price=0.4&rate=abc",
	} {
		t.Run(url, func(t *testing.T) {
			rec := get(t, s, url)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var body map[string]string
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGreeksEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/v1/greeks?spot=95300&strike=95000&ttl=420")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.GreeksSnapshot
	decode(t, rec, &snap)
	assert.Greater(t, snap.Up.Delta, 0.0)
	assert.Equal(t, snap.Up.Negate(), snap.Down)
}

func TestZoneEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/v1/zone?spot=95100&strike=95000&ttl=30")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Zone     model.Zone `json:"zone"`
		Distance float64    `json:"distance_to_strike_pct"`
	}
	decode(t, rec, &body)
	assert.Equal(t, model.ZoneGammaRisk, body.Zone)
	assert.InDelta(t, 0.105, body.Distance, 0.001)
}

func TestRiskAndHedgeEndpoints(t *testing.T) {
	s, p := newTestServer(t, nil)

	rec := get(t, s, "/api/v1/risk?spot=95010&strike=95000&ttl=30")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile model.RiskProfile
	decode(t, rec, &profile)
	assert.Equal(t, model.ZoneGammaRisk, profile.Zone)
	assert.Equal(t, risk.LevelHighRisk, profile.RecommendationLevel)

	rec = get(t, s, "/api/v1/hedge?spot=95300&strike=95000&ttl=420&size=100")
	require.Equal(t, http.StatusOK, rec.Code)
	var hedge model.HedgeSummary
	decode(t, rec, &hedge)
	want, err := risk.DeltaHedge(p, 100, 95300, 95000, 420)
	require.NoError(t, err)
	assert.InDelta(t, want.UnderlyingToHedge, hedge.UnderlyingToHedge, 1e-12)
	assert.Less(t, hedge.UnderlyingToHedge, 0.0)
}

func TestImpliedVolEndpoint(t *testing.T) {
	s, p := newTestServer(t, nil)
	price, err := p.CallPrice(95300, 95000, 420, pricing.WithVolatility(0.8))
	require.NoError(t, err)

	rec := get(t, s, fmt.Sprintf("/api/v1/iv?spot=95300&strike=95000&ttl=420&price=%v&side=up", price))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		IV   float64 `json:"implied_volatility"`
		Side string  `json:"side"`
	}
	decode(t, rec, &body)
	assert.InDelta(t, 0.8, body.IV, 1e-4)
	assert.Equal(t, "up", body.Side)
}

func TestImpliedVolNotConverged(t *testing.T) {
	s, _ := newTestServer(t, nil)

	// At the money the Up price stays below one half for any volatility.
	rec := get(t, s, "/api/v1/iv?spot=95000&strike=95000&ttl=420&price=0.5")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = get(t, s, "/api/v1/iv?spot=95000&strike=95000&ttl=0&price=0.4")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSurfaceEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/v1/surface?strike=95000&metric=delta&spot_steps=5&time_steps=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var surf surface.Surface
	decode(t, rec, &surf)
	assert.Equal(t, surface.MetricDelta, surf.Metric)
	assert.Len(t, surf.Spots, 5)
	require.Len(t, surf.Values, 3)
	for _, row := range surf.Values {
		assert.Len(t, row, 5)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/snapshot").Code)

	s, _ = newTestServer(t, staticSnapshot{})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/snapshot").Code)

	snap := model.MonitorSnapshot{
		UpdatedAt:        time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Sample:           model.MarketSample{Spot: 95300, Market: model.Market{ID: "m-1"}},
		Volatility:       0.6,
		VolatilitySource: "fixed",
	}
	s, _ = newTestServer(t, staticSnapshot{snap: snap, ok: true})
	rec := get(t, s, "/api/v1/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.MonitorSnapshot
	decode(t, rec, &got)
	assert.Equal(t, "m-1", got.Sample.Market.ID)
	assert.True(t, snap.UpdatedAt.Equal(got.UpdatedAt))

	rec = get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"market_id":"m-1"`)
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/nope").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	iv := 0.75
	s.metrics.ObserveSnapshot(model.MonitorSnapshot{
		Sample:           model.MarketSample{Quote: model.Quote{UpPrice: 0.62}},
		Profile:          model.RiskProfile{Inputs: model.PricingInputs{Spot: 95300}, Zone: model.ZoneLockIn, GammaRiskScore: 12},
		Volatility:       0.6,
		VolatilitySource: "fixed",
		ImpliedVol:       &iv,
	})
	s.metrics.ObserveAlert("zone_entry")
	s.metrics.ObserveTickError("sample")
	get(t, s, "/healthz")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		"binary_sentinel_spot_price 95300",
		"binary_sentinel_market_up_price 0.62",
		"binary_sentinel_implied_volatility 0.75",
		`binary_sentinel_zone{zone="lock_in"} 1`,
		`binary_sentinel_zone{zone="gamma_risk"} 0`,
		`binary_sentinel_volatility{source="fixed"} 0.6`,
		`binary_sentinel_alerts_total{kind="zone_entry"} 1`,
		`binary_sentinel_tick_errors_total{stage="sample"} 1`,
		`binary_sentinel_http_requests_total{code="200",route="/healthz"} 1`,
	} {
		assert.True(t, strings.Contains(text, want), "missing %q", want)
	}
}

func TestWriteJSONUnencodableBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"v": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "encode response")
}

func TestImpliedVolEndpointUsesRate(t *testing.T) {
	s, p := newTestServer(t, nil)
	price, err := p.CallPrice(95300, 95000, 86400, pricing.WithVolatility(0.8), pricing.WithRate(0.5))
	require.NoError(t, err)

	rec := get(t, s, fmt.Sprintf("/api/v1/iv?spot=95300&strike=95000&ttl=86400&price=%v&rate=0.5", price))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		IV     float64             `json:"implied_volatility"`
		Inputs model.PricingInputs `json:"inputs"`
	}
	decode(t, rec, &body)
	assert.InDelta(t, 0.8, body.IV, 1e-4)
	assert.Equal(t, 0.5, body.Inputs.Rate)
}
