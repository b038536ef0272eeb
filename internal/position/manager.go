package position

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/risk"
)

var (
	// ErrOtherMarket is returned when filling a market while another one is open.
	ErrOtherMarket = errors.New("position: another market is open")
	// ErrNoPosition is returned when there is nothing to close or hedge.
	ErrNoPosition = errors.New("position: no open position")
	// ErrInvalidFill is returned for zero sizes or prices outside [0, 1].
	ErrInvalidFill = errors.New("position: invalid fill")
)

// Manager keeps the Up-contract book with concurrency safety, persisted after every change.
type Manager struct {
	mu       sync.Mutex
	state    *model.PositionState
	filePath string
}

// NewManager creates a Manager, loading state from disk.
func NewManager(filePath string) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, fmt.Errorf("load position state: %w", err)
	}
	m := &Manager{state: state, filePath: filePath}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// State returns a copy of the current book.
func (m *Manager) State() model.PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// Fill books size contracts of the Up side at price. Negative size sells.
// Reductions realize PnL against the average price; a fill larger than the
// open size flips the position at price.
func (m *Manager) Fill(marketID string, size, price float64) (model.PositionState, error) {
	if size == 0 || math.IsNaN(size) || math.IsInf(size, 0) || !(price >= 0 && price <= 1) {
		return model.PositionState{}, fmt.Errorf("%w: size %v price %v", ErrInvalidFill, size, price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if s.Open() && s.MarketID != marketID {
		return *s, fmt.Errorf("%w: %s", ErrOtherMarket, s.MarketID)
	}
	if !s.Open() {
		s.MarketID = marketID
		s.OpenedAt = time.Now()
		s.AvgPrice = decimal.Zero
	}

	q := decimal.NewFromFloat(size)
	p := decimal.NewFromFloat(price)
	s.Cash = s.Cash.Sub(q.Mul(p))
	s.Fills++

	switch {
	case s.Size.IsZero() || s.Size.Sign() == q.Sign():
		basis := s.Size.Mul(s.AvgPrice).Add(q.Mul(p))
		s.Size = s.Size.Add(q)
		s.AvgPrice = basis.Div(s.Size)
	default:
		closing := decimal.Min(q.Abs(), s.Size.Abs())
		pnl := closing.Mul(p.Sub(s.AvgPrice))
		if s.Size.Sign() < 0 {
			pnl = pnl.Neg()
		}
		s.RealizedPnL = s.RealizedPnL.Add(pnl)
		s.Size = s.Size.Add(q)
		switch {
		case s.Size.IsZero():
			s.AvgPrice = decimal.Zero
		case s.Size.Sign() == q.Sign():
			s.AvgPrice = p
		}
	}

	if err := m.save(); err != nil {
		log.Errorf("failed to save position state: %v", err)
	}
	return *s, nil
}

// Close settles the open position at price, 1 or 0 at expiry or the market mid before it.
func (m *Manager) Close(marketID string, price float64) (model.PositionState, error) {
	if !(price >= 0 && price <= 1) {
		return model.PositionState{}, fmt.Errorf("%w: price %v", ErrInvalidFill, price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if !s.Open() {
		return *s, ErrNoPosition
	}
	if s.MarketID != marketID {
		return *s, fmt.Errorf("%w: %s", ErrOtherMarket, s.MarketID)
	}

	p := decimal.NewFromFloat(price)
	s.RealizedPnL = s.RealizedPnL.Add(s.Size.Mul(p.Sub(s.AvgPrice)))
	s.Cash = s.Cash.Add(s.Size.Mul(p))
	s.Size = decimal.Zero
	s.AvgPrice = decimal.Zero

	if err := m.save(); err != nil {
		log.Errorf("failed to save position state after close: %v", err)
	}
	return *s, nil
}

// Hedge computes the delta hedge for the open size.
func (m *Manager) Hedge(p *pricing.Pricer, spot, strike, ttlSeconds float64, opts ...pricing.CallOption) (model.HedgeSummary, error) {
	st := m.State()
	if !st.Open() {
		return model.HedgeSummary{}, ErrNoPosition
	}
	return risk.DeltaHedge(p, st.Size.InexactFloat64(), spot, strike, ttlSeconds, opts...)
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}
