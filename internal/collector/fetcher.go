package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"BinarySentinel/internal/model"
)

// SpotSource exposes the latest underlying price.
type SpotSource interface {
	LastPrice() (price float64, at time.Time, ok bool)
}

// OpenSource returns the underlying price at the open of a price window.
type OpenSource interface {
	OpenPrice(ctx context.Context, at time.Time) (float64, error)
}

// LatestSpot combines spot sources and reports the freshest price among them.
type LatestSpot []SpotSource

// LastPrice implements SpotSource.
func (l LatestSpot) LastPrice() (float64, time.Time, bool) {
	var (
		best   float64
		bestAt time.Time
		found  bool
	)
	for _, src := range l {
		price, at, ok := src.LastPrice()
		if !ok {
			continue
		}
		if !found || at.After(bestAt) {
			best, bestAt, found = price, at, true
		}
	}
	return best, bestAt, found
}

// MarketSource discovers Up/Down markets and quotes them.
type MarketSource interface {
	FindUpDownMarkets(ctx context.Context) ([]model.Market, error)
	Quote(ctx context.Context, m model.Market) (model.Quote, error)
	Name() string
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
	}
}
