package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/model"
)

// ErrMaxReconnects is returned by BinanceStream.Run once reconnect attempts are exhausted.
var ErrMaxReconnects = errors.New("binance: max reconnect attempts reached")

// BinanceStreamConfig configures the trade stream.
type BinanceStreamConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectDelay time.Duration
	Proxy          string
}

// BinanceStream follows a Binance trade stream and keeps the last price.
type BinanceStream struct {
	cfg    BinanceStreamConfig
	dialer *websocket.Dialer

	mu     sync.RWMutex
	last   model.Tick
	onTick func(model.Tick)
}

// NewBinanceStream creates a stream client. onTick, if non-nil, is called for every trade.
func NewBinanceStream(cfg BinanceStreamConfig, onTick func(model.Tick)) *BinanceStream {
	dialer := &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			dialer.Proxy = http.ProxyURL(u)
		}
	}
	return &BinanceStream{cfg: cfg, dialer: dialer, onTick: onTick}
}

// LastPrice implements SpotSource.
func (b *BinanceStream) LastPrice() (float64, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last.Price <= 0 {
		return 0, time.Time{}, false
	}
	return b.last.Price, b.last.Time, true
}

// Run streams until ctx is done or consecutive connection failures exceed MaxReconnects.
func (b *BinanceStream) Run(ctx context.Context) error {
	failures := 0
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errConnected) {
			failures = 0
		} else {
			failures++
			if failures > b.cfg.MaxReconnects {
				log.Errorf("binance stream: %v", err)
				return ErrMaxReconnects
			}
			log.Warnf("binance stream: %v, reconnecting (%d/%d)", err, failures, b.cfg.MaxReconnects)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.ReconnectDelay):
		}
	}
}

// errConnected marks a session that connected and later dropped.
var errConnected = errors.New("connection dropped")

func (b *BinanceStream) session(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Infof("binance stream connected: %s", b.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("binance stream read: %v", err)
			}
			return errConnected
		}
		tick, ok, err := parseTrade(msg)
		if err != nil {
			log.Debugf("binance stream: skip message: %v", err)
			continue
		}
		if !ok {
			continue
		}
		b.mu.Lock()
		b.last = tick
		b.mu.Unlock()
		if b.onTick != nil {
			b.onTick(tick)
		}
	}
}

// binanceTrade mirrors the trade event. Upper and lower case keys are distinct fields.
type binanceTrade struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

func parseTrade(msg []byte) (model.Tick, bool, error) {
	var tr binanceTrade
	if err := json.Unmarshal(msg, &tr); err != nil {
		return model.Tick{}, false, err
	}
	if tr.Event != "trade" {
		return model.Tick{}, false, nil
	}
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("price %q: %w", tr.Price, err)
	}
	qty, _ := strconv.ParseFloat(tr.Quantity, 64)
	return model.Tick{
		Time:     time.UnixMilli(tr.TradeTime),
		Price:    price,
		Quantity: qty,
		TradeID:  tr.TradeID,
	}, true, nil
}

// BinanceREST fetches spot prices over HTTP.
type BinanceREST struct {
	BaseURL string
	Symbol  string
	Client  *http.Client

	mu   sync.RWMutex
	last model.Tick
}

// NewBinanceREST creates a REST client with optional proxy support.
func NewBinanceREST(baseURL, symbol, proxyURL string) *BinanceREST {
	return &BinanceREST{BaseURL: baseURL, Symbol: symbol, Client: newHTTPClient(proxyURL)}
}

func (r *BinanceREST) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// FetchPrice returns the latest ticker price.
func (r *BinanceREST) FetchPrice(ctx context.Context) (float64, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", r.BaseURL, url.QueryEscape(r.Symbol))
	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := r.getJSON(ctx, u, &ticker); err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// ErrNoKline means Binance has no 1m candle for the requested minute yet.
var ErrNoKline = errors.New("binance: no kline for minute")

// OpenPrice returns the open of the 1m kline covering at, truncated to the minute.
func (r *BinanceREST) OpenPrice(ctx context.Context, at time.Time) (float64, error) {
	start := at.UTC().Truncate(time.Minute)
	u := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1m&startTime=%d&limit=1",
		r.BaseURL, url.QueryEscape(r.Symbol), start.UnixMilli())
	var rows [][]json.RawMessage
	if err := r.getJSON(ctx, u, &rows); err != nil {
		return 0, fmt.Errorf("fetch kline: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return 0, fmt.Errorf("%w %s", ErrNoKline, start.Format(time.RFC3339))
	}
	var openTime int64
	if err := json.Unmarshal(rows[0][0], &openTime); err != nil {
		return 0, fmt.Errorf("fetch kline: open time: %w", err)
	}
	if openTime != start.UnixMilli() {
		return 0, fmt.Errorf("%w %s (first kline opens at %d)", ErrNoKline, start.Format(time.RFC3339), openTime)
	}
	var open string
	if err := json.Unmarshal(rows[0][1], &open); err != nil {
		return 0, fmt.Errorf("fetch kline: open: %w", err)
	}
	price, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return 0, fmt.Errorf("fetch kline: open %q: %w", open, err)
	}
	return price, nil
}

// LastPrice implements SpotSource with the most recent polled price.
func (r *BinanceREST) LastPrice() (float64, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last.Price <= 0 {
		return 0, time.Time{}, false
	}
	return r.last.Price, r.last.Time, true
}

// Poll fetches the ticker every interval until ctx is done. Failed fetches are logged and skipped.
func (r *BinanceREST) Poll(ctx context.Context, every time.Duration, onTick func(model.Tick)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		price, err := r.FetchPrice(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("binance rest: %v", err)
		} else {
			tick := model.Tick{Time: time.Now(), Price: price}
			r.mu.Lock()
			r.last = tick
			r.mu.Unlock()
			if onTick != nil {
				onTick(tick)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
