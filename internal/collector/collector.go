package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/model"
)

var (
	// ErrNoSpot means no spot price has been observed yet.
	ErrNoSpot = errors.New("collector: no spot price")
	// ErrNoMarket means no live market is tracked.
	ErrNoMarket = errors.New("collector: no market tracked")
	// ErrStrikePending means the tracked market's window has not opened yet.
	ErrStrikePending = errors.New("collector: strike not known until window opens")
	// ErrStrikeUnknown means a market is already in progress and its opening price is unavailable.
	ErrStrikeUnknown = errors.New("collector: strike unknown for market in progress")
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	mu      sync.Mutex
	price   float64
	at      time.Time
	Markets []model.Market
	Quotes  map[string]model.Quote
	Err     error
}

// NewMockSource creates a mock with a spot price stamped now.
func NewMockSource(price float64) *MockSource {
	return &MockSource{price: price, at: time.Now(), Quotes: map[string]model.Quote{}}
}

func (m *MockSource) Name() string { return "mock" }

// SetPrice updates the spot price.
func (m *MockSource) SetPrice(price float64, at time.Time) {
	m.mu.Lock()
	m.price, m.at = price, at
	m.mu.Unlock()
}

func (m *MockSource) LastPrice() (float64, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, m.at, m.price > 0
}

func (m *MockSource) FindUpDownMarkets(_ context.Context) ([]model.Market, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Markets, nil
}

func (m *MockSource) Quote(_ context.Context, mk model.Market) (model.Quote, error) {
	if m.Err != nil {
		return model.Quote{}, m.Err
	}
	q, ok := m.Quotes[mk.ID]
	if !ok {
		q = model.Quote{UpPrice: 0.5, DownPrice: 0.5, UpAsk: 1, DownAsk: 1}
	}
	q.MarketID = mk.ID
	return q, nil
}

// StrikeGrace is how long after a window opens the current spot still stands in for its open.
const StrikeGrace = 5 * time.Second

// Collector aligns spot prices with quotes of the tracked market.
type Collector struct {
	spot        SpotSource
	markets     MarketSource
	opens       OpenSource
	fixedStrike float64
	now         func() time.Time

	mu     sync.RWMutex
	market *model.Market
	strike float64
}

// Option configures a Collector.
type Option func(*Collector)

// WithOpenPrices resolves strikes from the underlying price at each window open.
func WithOpenPrices(src OpenSource) Option {
	return func(c *Collector) { c.opens = src }
}

// NewCollector creates a Collector. A positive strike is used for every market;
// otherwise the strike is the spot price when the market's window opens.
func NewCollector(spot SpotSource, markets MarketSource, strike float64, opts ...Option) *Collector {
	c := &Collector{spot: spot, markets: markets, fixedStrike: strike, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Discover tracks the soonest-expiring live market whose strike can be known.
func (c *Collector) Discover(ctx context.Context) (model.Market, error) {
	found, err := c.markets.FindUpDownMarkets(ctx)
	if err != nil {
		return model.Market{}, fmt.Errorf("discover markets: %w", err)
	}
	now := c.now()
	for _, m := range found {
		if ttl, ok := m.TimeToExpiry(now); ok && ttl <= 0 {
			continue
		}
		if err := c.Track(ctx, m); err != nil {
			log.Infof("skip market %s: %v", m.ID, err)
			continue
		}
		return m, nil
	}
	return model.Market{}, ErrNoMarket
}

// Track switches to m. It fails with ErrStrikeUnknown when m opened too long ago
// for its strike to be recovered.
func (c *Collector) Track(ctx context.Context, m model.Market) error {
	strike, err := c.strikeFor(ctx, m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.market = &m
	c.strike = strike
	c.mu.Unlock()
	log.Infof("tracking market %s (%s), strike %.2f", m.ID, m.Question, strike)
	return nil
}

// strikeFor resolves the strike of m. It returns 0 and no error while the strike cannot be
// known yet: before the window opens, or before any spot price was seen.
func (c *Collector) strikeFor(ctx context.Context, m model.Market) (float64, error) {
	if c.fixedStrike > 0 {
		return c.fixedStrike, nil
	}
	spot, _, haveSpot := c.spot.LastPrice()
	now := c.now()
	switch {
	case m.StartDate.IsZero():
		log.Debugf("market %s has no start time, strike is the current spot", m.ID)
		return spot, nil
	case now.Before(m.StartDate):
		return 0, nil
	}

	if c.opens != nil {
		p, err := c.opens.OpenPrice(ctx, m.StartDate)
		if err == nil {
			return p, nil
		}
		log.Warnf("open price of market %s: %v", m.ID, err)
	}
	if haveSpot && now.Sub(m.StartDate) <= StrikeGrace {
		return spot, nil
	}
	return 0, fmt.Errorf("%w: market %s opened at %s", ErrStrikeUnknown, m.ID, m.StartDate.Format(time.RFC3339))
}

// Market returns the tracked market.
func (c *Collector) Market() (model.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.market == nil {
		return model.Market{}, false
	}
	return *c.market, true
}

// Strike returns the strike of the tracked market, 0 if not yet known.
func (c *Collector) Strike() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strike
}

// NeedsDiscovery reports whether no market is tracked or the tracked one has expired.
func (c *Collector) NeedsDiscovery() bool {
	m, ok := c.Market()
	if !ok {
		return true
	}
	ttl, known := m.TimeToExpiry(c.now())
	return known && ttl <= 0
}

// Spot returns the latest spot price.
func (c *Collector) Spot() (float64, time.Time, error) {
	p, at, ok := c.spot.LastPrice()
	if !ok {
		return 0, time.Time{}, ErrNoSpot
	}
	return p, at, nil
}

// Sample takes the last spot price and a fresh quote for the tracked market.
func (c *Collector) Sample(ctx context.Context) (model.MarketSample, error) {
	spot, _, err := c.Spot()
	if err != nil {
		return model.MarketSample{}, err
	}

	c.mu.RLock()
	if c.market == nil {
		c.mu.RUnlock()
		return model.MarketSample{}, ErrNoMarket
	}
	m, strike := *c.market, c.strike
	c.mu.RUnlock()

	if strike <= 0 {
		if strike, err = c.strikeFor(ctx, m); err != nil {
			return model.MarketSample{}, err
		}
		if strike <= 0 {
			return model.MarketSample{}, fmt.Errorf("%w: market %s opens at %s",
				ErrStrikePending, m.ID, m.StartDate.Format(time.RFC3339))
		}
		strike = c.setStrike(m.ID, strike)
	}

	q, err := c.markets.Quote(ctx, m)
	if err != nil {
		return model.MarketSample{}, fmt.Errorf("fetch quote: %w", err)
	}

	now := c.now()
	ttl, _ := m.TimeToExpiry(now)
	return model.MarketSample{
		Time:                now,
		Spot:                spot,
		Strike:              strike,
		TimeToExpirySeconds: ttl,
		Quote:               q,
		Market:              m,
	}, nil
}

// setStrike stores strike if id is still tracked without one, and returns the strike to use.
func (c *Collector) setStrike(id string, strike float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.market == nil || c.market.ID != id {
		return strike
	}
	if c.strike > 0 {
		return c.strike
	}
	c.strike = strike
	log.Infof("strike for market %s set to %.2f", id, strike)
	return strike
}
