package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"BinarySentinel/internal/model"
)

// PolymarketConfig configures the Gamma and CLOB clients.
type PolymarketConfig struct {
	CLOBURL           string
	GammaURL          string
	SlugKeywords      []string
	RequestsPerSecond float64
	Proxy             string
}

// Polymarket discovers Up/Down markets through Gamma and quotes them from CLOB order books.
type Polymarket struct {
	cfg     PolymarketConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewPolymarket creates a rate-limited, circuit-broken client.
func NewPolymarket(cfg PolymarketConfig) *Polymarket {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	st := gobreaker.Settings{
		Name:     "polymarket",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit %s: %s -> %s", name, from, to)
		},
	}
	return &Polymarket{
		cfg:     cfg,
		client:  newHTTPClient(cfg.Proxy),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker(st),
		now:     time.Now,
	}
}

func (p *Polymarket) Name() string { return "polymarket" }

func (p *Polymarket) getJSON(ctx context.Context, u string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(body.([]byte), out)
}

// stringList decodes either a JSON array of strings or a string holding one.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		*l = nil
		return nil
	}
	*l = arr
	return nil
}

type gammaEvent struct {
	Slug      string        `json:"slug"`
	Title     string        `json:"title"`
	StartTime string        `json:"startTime"`
	Markets   []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ConditionID  string     `json:"conditionId"`
	Question     string     `json:"question"`
	Slug         string     `json:"slug"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
	Outcomes     stringList `json:"outcomes"`
	EndDate      string     `json:"endDate"`
	EndDateISO   string     `json:"endDateIso"`
	// EventStartTime opens the price window. startDate is the listing time and is not used.
	EventStartTime string `json:"eventStartTime"`
}

// FindUpDownMarkets returns live markets whose event slug contains every keyword,
// soonest expiry first. Markets without an end date sort last.
func (p *Polymarket) FindUpDownMarkets(ctx context.Context) ([]model.Market, error) {
	u := p.cfg.GammaURL + "/events?active=true&closed=false&limit=200"
	var events []gammaEvent
	if err := p.getJSON(ctx, u, &events); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	now := p.now()
	var markets []model.Market
	for _, ev := range events {
		if !matchesKeywords(strings.ToLower(ev.Slug), p.cfg.SlugKeywords) {
			continue
		}
		for _, gm := range ev.Markets {
			m, ok := toMarket(gm, ev)
			if !ok {
				continue
			}
			if !m.EndDate.IsZero() && m.EndDate.Before(now) {
				continue
			}
			markets = append(markets, m)
		}
	}

	sort.SliceStable(markets, func(i, j int) bool {
		a, b := markets[i].EndDate, markets[j].EndDate
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		}
		return a.Before(b)
	})
	if len(markets) > 0 {
		log.Infof("found %d up/down market(s)", len(markets))
	}
	return markets, nil
}

func matchesKeywords(slug string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(slug, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func toMarket(gm gammaMarket, ev gammaEvent) (model.Market, bool) {
	if len(gm.ClobTokenIDs) < 2 || len(gm.Outcomes) < 2 {
		return model.Market{}, false
	}
	upIdx, downIdx := 0, 1
	for i, o := range gm.Outcomes {
		switch strings.ToLower(o) {
		case "up":
			upIdx = i
		case "down":
			downIdx = i
		}
	}
	if upIdx >= len(gm.ClobTokenIDs) || downIdx >= len(gm.ClobTokenIDs) {
		return model.Market{}, false
	}
	up, down := gm.ClobTokenIDs[upIdx], gm.ClobTokenIDs[downIdx]
	if up == "" || down == "" {
		return model.Market{}, false
	}

	slug := gm.Slug
	if slug == "" {
		slug = ev.Slug
	}
	start := firstTime(gm.EventStartTime, ev.StartTime)
	if start.IsZero() {
		start = slugStart(ev.Slug)
	}
	return model.Market{
		ID:          gm.ConditionID,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        slug,
		UpTokenID:   up,
		DownTokenID: down,
		StartDate:   start,
		EndDate:     firstTime(gm.EndDate, gm.EndDateISO),
	}, true
}

// firstTime parses the first non-empty RFC 3339 value.
func firstTime(values ...string) time.Time {
	for _, s := range values {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// slugStart reads the window start from a slug such as btc-updown-15m-1772365500.
func slugStart(slug string) time.Time {
	i := strings.LastIndexByte(slug, '-')
	if i < 0 {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(slug[i+1:], 10, 64)
	if err != nil || sec < 1e9 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBook struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// best returns the highest bid and lowest ask, defaulting to 0 and 1 on an empty side.
func (b orderBook) best() (bid, ask float64) {
	bid, ask = 0, 1
	for i, l := range b.Bids {
		if v, err := strconv.ParseFloat(l.Price, 64); err == nil && (i == 0 || v > bid) {
			bid = v
		}
	}
	for i, l := range b.Asks {
		if v, err := strconv.ParseFloat(l.Price, 64); err == nil && (i == 0 || v < ask) {
			ask = v
		}
	}
	return bid, ask
}

func mid(bid, ask float64) float64 {
	if bid != 0 && ask != 0 {
		return (bid + ask) / 2
	}
	return 0.5
}

// Quote fetches both order books concurrently.
func (p *Polymarket) Quote(ctx context.Context, m model.Market) (model.Quote, error) {
	var upBook, downBook orderBook
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.getJSON(gctx, p.bookURL(m.UpTokenID), &upBook)
	})
	g.Go(func() error {
		return p.getJSON(gctx, p.bookURL(m.DownTokenID), &downBook)
	})
	if err := g.Wait(); err != nil {
		return model.Quote{}, fmt.Errorf("fetch order books: %w", err)
	}

	upBid, upAsk := upBook.best()
	downBid, downAsk := downBook.best()
	return model.Quote{
		Time:      p.now(),
		MarketID:  m.ID,
		UpPrice:   mid(upBid, upAsk),
		DownPrice: mid(downBid, downAsk),
		UpBid:     upBid,
		UpAsk:     upAsk,
		DownBid:   downBid,
		DownAsk:   downAsk,
	}, nil
}

func (p *Polymarket) bookURL(tokenID string) string {
	return p.cfg.CLOBURL + "/book?token_id=" + url.QueryEscape(tokenID)
}
