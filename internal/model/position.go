package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the book for the Up contract of one market.
// Size is in contracts, positive when long Up. Prices are in [0, 1].
type PositionState struct {
	MarketID    string          `json:"market_id"`
	Size        decimal.Decimal `json:"size"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Cash        decimal.Decimal `json:"cash"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Fills       int             `json:"fills"`
	OpenedAt    time.Time       `json:"opened_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Open reports whether contracts are held.
func (s PositionState) Open() bool { return !s.Size.IsZero() }

// UnrealizedPnL marks the open size at mark.
func (s PositionState) UnrealizedPnL(mark float64) decimal.Decimal {
	return s.Size.Mul(decimal.NewFromFloat(mark).Sub(s.AvgPrice))
}
