package model

import "time"

// Tick is a single trade print from the spot venue.
type Tick struct {
	Time     time.Time
	Price    float64
	Quantity float64
	TradeID  int64
}

// Market identifies a prediction-market Up/Down contract pair.
type Market struct {
	ID          string    `json:"id"`
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Slug        string    `json:"slug"`
	UpTokenID   string    `json:"up_token_id"`
	DownTokenID string    `json:"down_token_id"`
	StartDate   time.Time `json:"start_date"` // price window open, zero when unknown
	EndDate     time.Time `json:"end_date"`   // zero when unknown
}

// TimeToExpiry returns the seconds left until EndDate, floored at 0.
// ok is false when the market has no end date.
func (m Market) TimeToExpiry(now time.Time) (seconds float64, ok bool) {
	if m.EndDate.IsZero() {
		return 0, false
	}
	s := m.EndDate.Sub(now).Seconds()
	if s < 0 {
		s = 0
	}
	return s, true
}

// Quote is the top of book for both sides of a market.
type Quote struct {
	Time      time.Time `json:"time"`
	MarketID  string    `json:"market_id"`
	UpPrice   float64   `json:"up_price"`
	DownPrice float64   `json:"down_price"`
	UpBid     float64   `json:"up_bid"`
	UpAsk     float64   `json:"up_ask"`
	DownBid   float64   `json:"down_bid"`
	DownAsk   float64   `json:"down_ask"`
}

// MarketSample aligns the spot price with a market quote at one instant.
type MarketSample struct {
	Time                time.Time `json:"time"`
	Spot                float64   `json:"spot"`
	Strike              float64   `json:"strike"`
	TimeToExpirySeconds float64   `json:"time_to_expiry_seconds"`
	Quote               Quote     `json:"quote"`
	Market              Market    `json:"market"`
}
