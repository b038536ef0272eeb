package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"BinarySentinel/internal/model"
)

// SQLiteRecorder persists monitor history to a SQLite database.
// Every row carries the session id of the process that wrote it.
type SQLiteRecorder struct {
	db      *sql.DB
	mu      sync.Mutex
	session string
	now     func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the monitor writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, session: uuid.NewString(), now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s (session %s)", dbPath, r.session)
	return r, nil
}

// Session returns the id stamped on rows written by this recorder.
func (r *SQLiteRecorder) Session() string { return r.session }

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_samples (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session       TEXT NOT NULL,
			timestamp     INTEGER NOT NULL,
			market_id     TEXT,
			spot          REAL,
			strike        REAL,
			ttl_seconds   REAL,
			up_price      REAL,
			down_price    REAL,
			up_bid        REAL,
			up_ask        REAL,
			down_bid      REAL,
			down_ask      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON market_samples(timestamp)`,

		`CREATE TABLE IF NOT EXISTS pricing_snapshots (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session       TEXT NOT NULL,
			timestamp     INTEGER NOT NULL,
			market_id     TEXT,
			spot          REAL,
			strike        REAL,
			ttl_seconds   REAL,
			volatility    REAL,
			model_up      REAL,
			model_down    REAL,
			market_up     REAL,
			market_down   REAL,
			implied_vol   REAL,
			delta         REAL,
			gamma         REAL,
			theta         REAL,
			vega          REAL,
			zone          TEXT,
			risk_score    REAL,
			risk_level    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_ts ON pricing_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			session    TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			market_id  TEXT,
			kind       TEXT,
			zone       TEXT,
			score      REAL,
			spot       REAL,
			message    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(timestamp)`,

		`CREATE TABLE IF NOT EXISTS hedge_events (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			session             TEXT NOT NULL,
			timestamp           INTEGER NOT NULL,
			market_id           TEXT,
			spot                REAL,
			strike              REAL,
			position_size       REAL,
			unit_delta          REAL,
			position_delta      REAL,
			underlying_to_hedge REAL,
			hedge_value         REAL,
			gamma_exposure      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hedge_ts ON hedge_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSample(s *model.MarketSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := s.Time
	if ts.IsZero() {
		ts = r.now()
	}
	q := s.Quote
	_, err := r.db.Exec(`INSERT INTO market_samples
		(session, timestamp, market_id, spot, strike, ttl_seconds,
		 up_price, down_price, up_bid, up_ask, down_bid, down_ask)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.session, ts.UnixMilli(), s.Market.ID, s.Spot, s.Strike, s.TimeToExpirySeconds,
		q.UpPrice, q.DownPrice, q.UpBid, q.UpAsk, q.DownBid, q.DownAsk,
	)
	return err
}

func (r *SQLiteRecorder) RecordPricing(evt *PricingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := evt.Profile
	var iv sql.NullFloat64
	if evt.ImpliedVol != nil {
		iv = sql.NullFloat64{Float64: *evt.ImpliedVol, Valid: true}
	}
	_, err := r.db.Exec(`INSERT INTO pricing_snapshots
		(session, timestamp, market_id, spot, strike, ttl_seconds, volatility,
		 model_up, model_down, market_up, market_down, implied_vol,
		 delta, gamma, theta, vega, zone, risk_score, risk_level)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.session, r.now().UnixMilli(), evt.MarketID,
		p.Inputs.Spot, p.Inputs.Strike, p.Inputs.TimeToExpirySeconds, p.Inputs.Volatility,
		p.UpPrice, p.DownPrice, evt.MarketUp, evt.MarketDown, iv,
		p.Delta, p.Gamma, p.ThetaPerSecond, p.Vega,
		string(p.Zone), p.GammaRiskScore, p.RecommendationLevel,
	)
	return err
}

func (r *SQLiteRecorder) RecordAlert(evt *AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := r.db.Exec(`INSERT INTO alerts
		(id, session, timestamp, market_id, kind, zone, score, spot, message)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.ID, r.session, r.now().UnixMilli(), evt.MarketID,
		evt.Kind, string(evt.Zone), evt.Score, evt.Spot, evt.Message,
	)
	return err
}

func (r *SQLiteRecorder) RecordHedge(evt *HedgeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := evt.Hedge
	_, err := r.db.Exec(`INSERT INTO hedge_events
		(session, timestamp, market_id, spot, strike, position_size, unit_delta,
		 position_delta, underlying_to_hedge, hedge_value, gamma_exposure)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.session, r.now().UnixMilli(), evt.MarketID, evt.Spot, evt.Strike,
		h.PositionSize, h.UnitDelta, h.PositionDelta, h.UnderlyingToHedge,
		h.HedgeValue, h.GammaExposure,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
