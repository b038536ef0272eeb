package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinarySentinel/internal/collector"
	"BinarySentinel/internal/model"
	"BinarySentinel/internal/notifier"
	"BinarySentinel/internal/position"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/recorder"
	"BinarySentinel/internal/volatility"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendWithRetry(_ context.Context, text string, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *captureSender) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

type captureRecorder struct {
	recorder.NoopRecorder
	samples, pricings int
	alerts            []recorder.AlertEvent
	hedges            []recorder.HedgeEvent
}

func (r *captureRecorder) RecordSample(*model.MarketSample) error { r.samples++; return nil }
func (r *captureRecorder) RecordPricing(*recorder.PricingEvent) error {
	r.pricings++
	return nil
}
func (r *captureRecorder) RecordAlert(e *recorder.AlertEvent) error {
	r.alerts = append(r.alerts, *e)
	return nil
}
func (r *captureRecorder) RecordHedge(e *recorder.HedgeEvent) error {
	r.hedges = append(r.hedges, *e)
	return nil
}

type captureObserver struct {
	snapshots int
	errors    map[string]int
	alerts    map[string]int
}

func (o *captureObserver) ObserveSnapshot(model.MonitorSnapshot) { o.snapshots++ }
func (o *captureObserver) ObserveTickError(stage string)         { o.errors[stage]++ }
func (o *captureObserver) ObserveAlert(kind string)              { o.alerts[kind]++ }

type fixture struct {
	t    *testing.T
	src  *collector.MockSource
	col  *collector.Collector
	pos  *position.Manager
	send *captureSender
	rec  *captureRecorder
	obs  *captureObserver
	s    *Scheduler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		t:    t,
		src:  collector.NewMockSource(95000),
		send: &captureSender{},
		rec:  &captureRecorder{},
		obs:  &captureObserver{errors: map[string]int{}, alerts: map[string]int{}},
	}
	f.col = collector.NewCollector(f.src, f.src, 95000)
	p, err := pricing.NewPricer(pricing.DefaultSettings())
	require.NoError(t, err)
	f.pos, err = position.NewManager(filepath.Join(t.TempDir(), "position.json"))
	require.NoError(t, err)

	f.s = NewScheduler(context.Background(), f.col, p, volatility.NewEstimator(10), f.pos, f.send, f.rec, opts)
	f.s.Observer = f.obs
	return f
}

func (f *fixture) track(id string, ttl time.Duration) model.Market {
	m := model.Market{ID: id, Question: "BTC Up or Down?", EndDate: time.Now().Add(ttl)}
	f.src.Quotes[id] = model.Quote{UpPrice: 0.5, DownPrice: 0.5, UpBid: 0.49, UpAsk: 0.51}
	require.NoError(f.t, f.col.Track(context.Background(), m))
	return m
}

func TestTick_NoMarket(t *testing.T) {
	f := newFixture(t, Options{})
	f.s.tick()

	_, ok := f.s.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 1, f.obs.errors["sample"])
	assert.Zero(t, f.rec.samples)
}

func TestTick_AlertsOncePerCrossing(t *testing.T) {
	f := newFixture(t, Options{})
	f.track("m1", 30*time.Second)

	f.s.tick()
	snap, ok := f.s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, model.ZoneGammaRisk, snap.Profile.Zone)
	assert.Greater(t, snap.Profile.GammaRiskScore, 70.0)
	assert.Equal(t, SourceFixed, snap.VolatilitySource)
	assert.InDelta(t, 0.5-snap.Profile.UpPrice, snap.Edge, 1e-12)
	require.Len(t, f.rec.alerts, 2)
	assert.Equal(t, recorder.AlertZoneEntry, f.rec.alerts[0].Kind)
	assert.Equal(t, recorder.AlertRiskScore, f.rec.alerts[1].Kind)

	f.s.tick()
	assert.Len(t, f.rec.alerts, 2, "no repeat while still inside")

	// leave the gamma zone
	f.src.SetPrice(96000, time.Now())
	f.s.tick()
	snap, _ = f.s.Snapshot()
	assert.Equal(t, model.ZoneTransition, snap.Profile.Zone)
	assert.Len(t, f.rec.alerts, 2)

	// and come back
	f.src.SetPrice(95000, time.Now())
	f.s.tick()
	assert.Len(t, f.rec.alerts, 4)

	assert.Equal(t, 4, f.rec.samples)
	assert.Equal(t, 4, f.rec.pricings)
	assert.Equal(t, 4, f.obs.snapshots)
	assert.Equal(t, 2, f.obs.alerts[recorder.AlertZoneEntry])
	assert.Len(t, f.send.messages(), 4)
	assert.Contains(t, f.send.messages()[0], "start → gamma_risk")
}

func TestTick_AlertIncludesHedge(t *testing.T) {
	f := newFixture(t, Options{})
	f.track("m1", 30*time.Second)
	_, err := f.pos.Fill("m1", 1000, 0.5)
	require.NoError(t, err)

	f.s.tick()
	require.NotEmpty(t, f.rec.hedges)
	assert.Equal(t, 1000.0, f.rec.hedges[0].Hedge.PositionSize)
	assert.Contains(t, f.send.messages()[0], "Delta hedge")
}

func TestTick_RealizedVolatility(t *testing.T) {
	f := newFixture(t, Options{VolatilitySource: SourceRealized})
	f.track("m1", 10*time.Minute)

	f.s.tick()
	snap, _ := f.s.Snapshot()
	assert.Equal(t, SourceFallback, snap.VolatilitySource)
	assert.Equal(t, pricing.DefaultVolatility, snap.Volatility)

	base := time.Now()
	for i, p := range []float64{95000, 95050, 94990, 95020} {
		f.s.Vol.Add(base.Add(time.Duration(i)*time.Second), p)
	}
	f.s.tick()
	snap, _ = f.s.Snapshot()
	assert.Equal(t, SourceRealized, snap.VolatilitySource)
	assert.NotEqual(t, pricing.DefaultVolatility, snap.Volatility)
	assert.Greater(t, snap.Volatility, 0.0)
}

func TestDiscoverAndSettle(t *testing.T) {
	f := newFixture(t, Options{})
	old := f.track("old", -time.Second)
	_, err := f.pos.Fill(old.ID, 100, 0.4)
	require.NoError(t, err)

	f.src.Markets = []model.Market{{ID: "new", EndDate: time.Now().Add(10 * time.Minute)}}
	f.s.RunDiscoverNow()

	m, ok := f.col.Market()
	require.True(t, ok)
	assert.Equal(t, "new", m.ID)

	st := f.pos.State()
	assert.False(t, st.Open())
	assert.True(t, decimal.NewFromInt(60).Equal(st.RealizedPnL), st.RealizedPnL.String())
	require.NotEmpty(t, f.send.messages())
	assert.Contains(t, f.send.messages()[0], "Settled")

	// nothing to do while the market is live
	f.src.Markets = nil
	f.s.RunDiscoverNow()
	m, _ = f.col.Market()
	assert.Equal(t, "new", m.ID)
}

func TestSummaryTask(t *testing.T) {
	f := newFixture(t, Options{})
	f.track("m1", 10*time.Minute)
	f.s.tick()
	f.s.tick()

	f.s.summaryTask()
	msgs := f.send.messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Contains(t, last, "Ticks: 2")
	assert.Contains(t, last, "Markets: 1")
	assert.Contains(t, last, "linear_decay: 2")

	f.s.mu.RLock()
	assert.Zero(t, f.s.period.Ticks)
	f.s.mu.RUnlock()
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, "No market data yet", f.s.HandleCommand("/price"))
	assert.Equal(t, notifier.HelpText, f.s.HandleCommand("/help@SentinelBot"))
	assert.Equal(t, notifier.HelpText, f.s.HandleCommand("hello"))
	assert.Contains(t, f.s.HandleCommand("/position"), "Flat")

	f.track("m1", 10*time.Minute)
	f.s.tick()

	assert.Contains(t, f.s.HandleCommand("/price"), "Edge:")
	assert.Contains(t, f.s.HandleCommand("/RISK"), "Gamma risk score")
	assert.Equal(t, "No open position on the tracked market", f.s.HandleCommand("/hedge"))

	_, err := f.pos.Fill("m1", 100, 0.45)
	require.NoError(t, err)
	assert.Contains(t, f.s.HandleCommand("/hedge"), "Position: 100.00 Up contracts")
	pos := f.s.HandleCommand("/position")
	assert.Contains(t, pos, "Mark: 0.5000")
	assert.True(t, strings.Contains(pos, "Unrealized: 5.00"), pos)
}

func TestHandleCommand_FillAndClose(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, "No market tracked", f.s.HandleCommand("/fill 100 0.45"))
	assert.Equal(t, "No open position", f.s.HandleCommand("/close"))

	f.track("m1", 10*time.Minute)
	f.s.tick()

	assert.Contains(t, f.s.HandleCommand("/fill 100"), "Usage: /fill")
	assert.Contains(t, f.s.HandleCommand("/fill ten 0.45"), "Usage: /fill")
	assert.Contains(t, f.s.HandleCommand("/fill 100 1.5"), "Fill rejected")
	assert.False(t, f.pos.State().Open())

	reply := f.s.HandleCommand("/fill 100 0.45")
	assert.Contains(t, reply, "Market: m1")
	assert.Contains(t, reply, "Unrealized: 5.00")
	st := f.pos.State()
	assert.Equal(t, "m1", st.MarketID)
	assert.Equal(t, 100.0, st.Size.InexactFloat64())

	assert.Contains(t, f.s.HandleCommand("/hedge"), "Position: 100.00 Up contracts")

	f.s.HandleCommand("/fill -40 0.55")
	assert.Equal(t, 60.0, f.pos.State().Size.InexactFloat64())
	assert.Equal(t, "4.00", f.pos.State().RealizedPnL.StringFixed(2))

	reply = f.s.HandleCommand("/close")
	assert.Contains(t, reply, "Flat")
	st = f.pos.State()
	assert.False(t, st.Open())
	assert.Equal(t, "7.00", st.RealizedPnL.StringFixed(2))

	f.s.HandleCommand("/fill 10 0.40")
	assert.Contains(t, f.s.HandleCommand("/close 1"), "Realized: 13.00")
	assert.Contains(t, f.s.HandleCommand("/close 0.5 extra"), "No open position")
}

func TestHandleCommand_CloseWithoutMarketPrice(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.pos.Fill("old", 10, 0.5)
	require.NoError(t, err)

	assert.Contains(t, f.s.HandleCommand("/close"), "use /close")
	assert.Contains(t, f.s.HandleCommand("/close abc"), "Usage: /close")
	assert.Contains(t, f.s.HandleCommand("/close 0.8"), "Realized: 3.00")
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.s.RegisterAll("*/1 * * * * *", "0 * * * * *", "0 0 * * * *"))
	assert.Len(t, f.s.Cron.Entries(), 3)
	assert.Error(t, f.s.RegisterAll("nonsense", "0 * * * * *", "0 0 * * * *"))
}
