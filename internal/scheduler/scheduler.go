package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/collector"
	"BinarySentinel/internal/model"
	"BinarySentinel/internal/notifier"
	"BinarySentinel/internal/position"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/recorder"
	"BinarySentinel/internal/risk"
	"BinarySentinel/internal/volatility"
)

// Volatility source labels.
const (
	SourceFixed    = "fixed"
	SourceRealized = "realized"
	SourceFallback = "fixed (fallback)"
)

// Observer receives monitor events, typically for metrics.
type Observer interface {
	ObserveSnapshot(s model.MonitorSnapshot)
	ObserveTickError(stage string)
	ObserveAlert(kind string)
}

type noopObserver struct{}

func (noopObserver) ObserveSnapshot(model.MonitorSnapshot) {}
func (noopObserver) ObserveTickError(string)               {}
func (noopObserver) ObserveAlert(string)                   {}

// Options tunes alerting and volatility selection.
type Options struct {
	AlertScore       float64
	AlertZone        model.Zone
	VolatilitySource string // SourceFixed or SourceRealized
}

// Scheduler manages all cron tasks and holds the latest monitor state.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Pricer    *pricing.Pricer
	Vol       *volatility.Estimator
	Position  *position.Manager
	Notifier  notifier.Sender
	Recorder  recorder.Recorder
	Observer  Observer
	Opts      Options
	Ctx       context.Context

	mu         sync.RWMutex
	snapshot   *model.MonitorSnapshot
	marketID   string
	lastZone   model.Zone
	aboveScore bool
	period     model.PeriodSummary
	seen       map[string]struct{}
}

// NewScheduler creates a new Scheduler. vol and pos may be nil.
func NewScheduler(ctx context.Context, col *collector.Collector, p *pricing.Pricer, vol *volatility.Estimator,
	pos *position.Manager, sender notifier.Sender, rec recorder.Recorder, opts Options) *Scheduler {
	if opts.AlertZone == "" {
		opts.AlertZone = model.ZoneGammaRisk
	}
	if opts.AlertScore == 0 {
		opts.AlertScore = risk.HighRiskScore
	}
	if sender == nil {
		sender = notifier.NoopSender{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	s := &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Pricer:    p,
		Vol:       vol,
		Position:  pos,
		Notifier:  sender,
		Recorder:  rec,
		Observer:  noopObserver{},
		Opts:      opts,
		Ctx:       ctx,
	}
	s.resetPeriod(time.Now())
	return s
}

// RegisterAll registers the tick, discover and summary tasks.
func (s *Scheduler) RegisterAll(tickCron, discoverCron, summaryCron string) error {
	if _, err := s.Cron.AddFunc(tickCron, s.tick); err != nil {
		return fmt.Errorf("register tick task: %w", err)
	}
	if _, err := s.Cron.AddFunc(discoverCron, s.discoverTask); err != nil {
		return fmt.Errorf("register discover task: %w", err)
	}
	if _, err := s.Cron.AddFunc(summaryCron, s.summaryTask); err != nil {
		return fmt.Errorf("register summary task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info("scheduler stopped")
}

// RunDiscoverNow runs market discovery immediately.
func (s *Scheduler) RunDiscoverNow() {
	s.discoverTask()
}

// Snapshot returns the latest monitor state.
func (s *Scheduler) Snapshot() (model.MonitorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return model.MonitorSnapshot{}, false
	}
	return *s.snapshot, true
}

func (s *Scheduler) volatility() (float64, string) {
	def := s.Pricer.Settings().DefaultVolatility
	if s.Opts.VolatilitySource != SourceRealized || s.Vol == nil {
		return def, SourceFixed
	}
	v, err := s.Vol.Annualized()
	if err != nil || v <= 0 {
		return def, SourceFallback
	}
	return v, SourceRealized
}

func (s *Scheduler) tick() {
	sample, err := s.Collector.Sample(s.Ctx)
	if err != nil {
		s.tickError("sample", err)
		return
	}
	if err := s.Recorder.RecordSample(&sample); err != nil {
		log.Errorf("record sample: %v", err)
	}

	vol, source := s.volatility()
	profile, err := risk.BuildProfile(s.Pricer, sample.Spot, sample.Strike, sample.TimeToExpirySeconds,
		pricing.WithVolatility(vol), pricing.At(sample.Time))
	if err != nil {
		s.tickError("price", err)
		return
	}

	snap := model.MonitorSnapshot{
		UpdatedAt:        sample.Time,
		Sample:           sample,
		Profile:          profile,
		Volatility:       vol,
		VolatilitySource: source,
		Edge:             sample.Quote.UpPrice - profile.UpPrice,
	}
	if iv, err := s.Pricer.ImpliedVolatility(sample.Quote.UpPrice, sample.Spot, sample.Strike,
		sample.TimeToExpirySeconds, true); err == nil {
		snap.ImpliedVol = &iv
	} else if !errors.Is(err, pricing.ErrNotConverged) {
		log.Debugf("implied volatility: %v", err)
	}

	s.Observer.ObserveSnapshot(snap)
	if err := s.Recorder.RecordPricing(&recorder.PricingEvent{
		MarketID:   sample.Market.ID,
		Profile:    profile,
		MarketUp:   sample.Quote.UpPrice,
		MarketDown: sample.Quote.DownPrice,
		ImpliedVol: snap.ImpliedVol,
	}); err != nil {
		log.Errorf("record pricing: %v", err)
	}

	for _, alert := range s.update(snap) {
		s.fireAlert(alert, snap)
	}
}

type pendingAlert struct {
	kind string
	prev model.Zone
}

// update stores snap and returns the alerts it triggers.
func (s *Scheduler) update(snap model.MonitorSnapshot) []pendingAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.Sample.Market.ID
	if id != s.marketID {
		s.marketID = id
		s.lastZone = ""
		s.aboveScore = false
	}
	s.snapshot = &snap

	var alerts []pendingAlert
	zone := snap.Profile.Zone
	if zone == s.Opts.AlertZone && s.lastZone != zone {
		alerts = append(alerts, pendingAlert{kind: recorder.AlertZoneEntry, prev: s.lastZone})
	}
	s.lastZone = zone

	above := snap.Profile.GammaRiskScore > s.Opts.AlertScore
	if above && !s.aboveScore {
		alerts = append(alerts, pendingAlert{kind: recorder.AlertRiskScore})
	}
	s.aboveScore = above

	s.period.Ticks++
	s.period.Alerts += len(alerts)
	s.period.ZoneCounts[zone]++
	if snap.Profile.GammaRiskScore > s.period.MaxScore {
		s.period.MaxScore = snap.Profile.GammaRiskScore
	}
	s.seen[id] = struct{}{}
	return alerts
}

func (s *Scheduler) fireAlert(a pendingAlert, snap model.MonitorSnapshot) {
	var msg string
	switch a.kind {
	case recorder.AlertZoneEntry:
		prev := a.prev
		if prev == "" {
			prev = "start"
		}
		msg = notifier.FormatZoneAlert(prev, snap)
	default:
		msg = notifier.FormatScoreAlert(s.Opts.AlertScore, snap)
	}
	log.WithFields(log.Fields{
		"kind":   a.kind,
		"market": snap.Sample.Market.ID,
		"zone":   snap.Profile.Zone,
		"score":  snap.Profile.GammaRiskScore,
	}).Warn("risk alert")

	s.Observer.ObserveAlert(a.kind)
	if err := s.Recorder.RecordAlert(&recorder.AlertEvent{
		MarketID: snap.Sample.Market.ID,
		Kind:     a.kind,
		Zone:     snap.Profile.Zone,
		Score:    snap.Profile.GammaRiskScore,
		Spot:     snap.Sample.Spot,
		Message:  msg,
	}); err != nil {
		log.Errorf("record alert: %v", err)
	}

	if h, ok := s.hedge(snap); ok {
		msg += "\n\n" + notifier.FormatHedge(h)
	}
	s.trySend(msg)
}

// hedge computes and records the hedge for an open position on the snapshot's market.
func (s *Scheduler) hedge(snap model.MonitorSnapshot) (model.HedgeSummary, bool) {
	if s.Position == nil {
		return model.HedgeSummary{}, false
	}
	st := s.Position.State()
	if !st.Open() || st.MarketID != snap.Sample.Market.ID {
		return model.HedgeSummary{}, false
	}
	h, err := s.Position.Hedge(s.Pricer, snap.Sample.Spot, snap.Sample.Strike, snap.Sample.TimeToExpirySeconds,
		pricing.WithVolatility(snap.Volatility))
	if err != nil {
		log.Errorf("hedge: %v", err)
		return model.HedgeSummary{}, false
	}
	if err := s.Recorder.RecordHedge(&recorder.HedgeEvent{
		MarketID: snap.Sample.Market.ID,
		Spot:     snap.Sample.Spot,
		Strike:   snap.Sample.Strike,
		Hedge:    h,
	}); err != nil {
		log.Errorf("record hedge: %v", err)
	}
	return h, true
}

func (s *Scheduler) tickError(stage string, err error) {
	switch {
	case errors.Is(err, collector.ErrNoSpot), errors.Is(err, collector.ErrNoMarket),
		errors.Is(err, collector.ErrStrikePending):
		log.Debugf("tick %s: %v", stage, err)
	default:
		log.Warnf("tick %s: %v", stage, err)
	}
	s.Observer.ObserveTickError(stage)
	s.mu.Lock()
	s.period.Errors++
	s.mu.Unlock()
}

func (s *Scheduler) discoverTask() {
	if !s.Collector.NeedsDiscovery() {
		return
	}
	s.settleExpired()

	m, err := s.Collector.Discover(s.Ctx)
	if err != nil {
		if errors.Is(err, collector.ErrNoMarket) {
			log.Info("no live up/down market found")
		} else {
			log.Errorf("discover: %v", err)
		}
		return
	}
	log.Infof("now tracking %s, expiring %s", m.Question, m.EndDate.Format(time.RFC3339))
}

// settleExpired closes a position left on the expired market at its binary payoff.
func (s *Scheduler) settleExpired() {
	if s.Position == nil {
		return
	}
	old, ok := s.Collector.Market()
	if !ok {
		return
	}
	st := s.Position.State()
	if !st.Open() || st.MarketID != old.ID {
		return
	}
	spot, _, err := s.Collector.Spot()
	if err != nil {
		log.Warnf("settle %s: %v", old.ID, err)
		return
	}
	strike := s.Collector.Strike()
	if strike <= 0 {
		log.Warnf("settle %s: strike unknown, position left open", old.ID)
		return
	}
	payoff := 0.0
	if spot >= strike {
		payoff = 1
	}
	closed, err := s.Position.Close(old.ID, payoff)
	if err != nil {
		log.Errorf("settle %s: %v", old.ID, err)
		return
	}
	log.Infof("settled %s at %.0f, realized %s", old.ID, payoff, closed.RealizedPnL.StringFixed(2))
	s.trySend(fmt.Sprintf("🏁 <b>Settled</b> at %.0f\n\n%s", payoff, notifier.FormatPosition(closed, 0)))
}

func (s *Scheduler) summaryTask() {
	now := time.Now()
	s.mu.Lock()
	s.period.End = now
	s.period.Markets = len(s.seen)
	sum := s.period
	s.mu.Unlock()
	s.resetPeriod(now)

	log.Infof("summary: %d ticks, %d errors, %d alerts", sum.Ticks, sum.Errors, sum.Alerts)
	s.trySend(notifier.FormatSummary(sum))
}

func (s *Scheduler) resetPeriod(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = model.PeriodSummary{Start: start, ZoneCounts: make(map[model.Zone]int)}
	s.seen = make(map[string]struct{})
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")

	snap, ok := s.Snapshot()
	switch cmd {
	case "/price":
		if !ok {
			return "No market data yet"
		}
		return notifier.FormatSnapshot(snap)
	case "/risk":
		if !ok {
			return "No market data yet"
		}
		return notifier.FormatRiskProfile(snap.Profile)
	case "/hedge":
		if !ok {
			return "No market data yet"
		}
		h, found := s.hedge(snap)
		if !found {
			return "No open position on the tracked market"
		}
		return notifier.FormatHedge(h)
	case "/position":
		if s.Position == nil {
			return "Position book disabled"
		}
		st := s.Position.State()
		return notifier.FormatPosition(st, s.mark(st))
	case "/fill":
		return s.fillCommand(fields[1:])
	case "/close":
		return s.closeCommand(fields[1:], snap, ok)
	default:
		return notifier.HelpText
	}
}

// fillCommand books "/fill <size> <price>" on the tracked market. Negative sizes sell.
func (s *Scheduler) fillCommand(args []string) string {
	if s.Position == nil {
		return "Position book disabled"
	}
	if len(args) != 2 {
		return "Usage: /fill &lt;size&gt; &lt;price&gt;"
	}
	size, err1 := strconv.ParseFloat(args[0], 64)
	price, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		return "Usage: /fill &lt;size&gt; &lt;price&gt;"
	}
	m, ok := s.Collector.Market()
	if !ok {
		return "No market tracked"
	}
	st, err := s.Position.Fill(m.ID, size, price)
	if err != nil {
		return fmt.Sprintf("Fill rejected: %s", html.EscapeString(err.Error()))
	}
	log.Infof("fill %s: %+.2f @ %.4f, size now %s", m.ID, size, price, st.Size.String())
	return notifier.FormatPosition(st, s.mark(st))
}

// closeCommand closes the open position at the given price, or at the market mid.
func (s *Scheduler) closeCommand(args []string, snap model.MonitorSnapshot, haveSnap bool) string {
	if s.Position == nil {
		return "Position book disabled"
	}
	st := s.Position.State()
	if !st.Open() {
		return "No open position"
	}
	var price float64
	switch {
	case len(args) == 1:
		p, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "Usage: /close [price]"
		}
		price = p
	case len(args) > 1:
		return "Usage: /close [price]"
	case haveSnap && snap.Sample.Market.ID == st.MarketID:
		price = snap.Sample.Quote.UpPrice
	default:
		return "No market price for the open position, use /close &lt;price&gt;"
	}
	closed, err := s.Position.Close(st.MarketID, price)
	if err != nil {
		return fmt.Sprintf("Close rejected: %s", html.EscapeString(err.Error()))
	}
	log.Infof("closed %s at %.4f, realized %s", st.MarketID, price, closed.RealizedPnL.StringFixed(2))
	return notifier.FormatPosition(closed, 0)
}

// mark is the Up mid of the tracked market when st is open on it, 0 otherwise.
func (s *Scheduler) mark(st model.PositionState) float64 {
	snap, ok := s.Snapshot()
	if ok && st.Open() && st.MarketID == snap.Sample.Market.ID {
		return snap.Sample.Quote.UpPrice
	}
	return 0
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Errorf("send notification: %v", err)
	}
}
