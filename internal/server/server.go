package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/model"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/risk"
	"BinarySentinel/internal/surface"
)

// errBadParam marks a malformed or missing query parameter.
var errBadParam = errors.New("bad query parameter")

// SnapshotSource exposes the latest monitor state.
type SnapshotSource interface {
	Snapshot() (model.MonitorSnapshot, bool)
}

// Server is the read-only JSON pricing API.
type Server struct {
	router   *mux.Router
	http     *http.Server
	pricer   *pricing.Pricer
	snapshot SnapshotSource
	metrics  *Metrics
}

// New builds the router. snapshot may be nil when no monitor is running.
func New(addr string, p *pricing.Pricer, snapshot SnapshotSource, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		router:   mux.NewRouter(),
		pricer:   p,
		snapshot: snapshot,
		metrics:  metrics,
	}
	s.routes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/greeks", s.handleGreeks).Methods(http.MethodGet)
	api.HandleFunc("/zone", s.handleZone).Methods(http.MethodGet)
	api.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	api.HandleFunc("/hedge", s.handleHedge).Methods(http.MethodGet)
	api.HandleFunc("/iv", s.handleIV).Methods(http.MethodGet)
	api.HandleFunc("/surface", s.handleSurface).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
}

// ListenAndServe blocks until the server stops. ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	log.Infof("HTTP API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveRequest(route, rw.status)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rw.status,
			"duration":   time.Since(start).String(),
			"request_id": w.Header().Get("X-Request-ID"),
		}).Debug("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// pricingQuery is the common spot/strike/ttl/vol/rate parameter set.
type pricingQuery struct {
	spot, strike, ttl float64
	rate              float64
	opts              []pricing.CallOption
}

func (s *Server) parsePricing(r *http.Request) (pricingQuery, error) {
	q := r.URL.Query()
	var pq pricingQuery
	var err error
	if pq.spot, err = requiredFloat(q.Get("spot"), "spot"); err != nil {
		return pq, err
	}
	if pq.strike, err = requiredFloat(q.Get("strike"), "strike"); err != nil {
		return pq, err
	}
	if pq.ttl, err = requiredFloat(q.Get("ttl"), "ttl"); err != nil {
		return pq, err
	}
	if v := q.Get("vol"); v != "" {
		vol, err := parseFloat(v, "vol")
		if err != nil {
			return pq, err
		}
		pq.opts = append(pq.opts, pricing.WithVolatility(vol))
	}
	pq.rate = s.pricer.Settings().DefaultRate
	if v := q.Get("rate"); v != "" {
		if pq.rate, err = parseFloat(v, "rate"); err != nil {
			return pq, err
		}
		pq.opts = append(pq.opts, pricing.WithRate(pq.rate))
	}
	return pq, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.snapshot != nil {
		if snap, ok := s.snapshot.Snapshot(); ok {
			body["last_tick"] = snap.UpdatedAt
			body["market_id"] = snap.Sample.Market.ID
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.pricer.Price(pq.spot, pq.strike, pq.ttl, pq.opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGreeks(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := s.pricer.FullGreeks(pq.spot, pq.strike, pq.ttl, pq.opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := pricing.Validate(s.pricer.Inputs(pq.spot, pq.strike, pq.ttl, pq.opts...)); err != nil {
		writeFailure(w, err)
		return
	}
	zc := pricing.ClassifyZone(pq.ttl, pq.spot, pq.strike)
	writeJSON(w, http.StatusOK, map[string]any{
		"zone":                   zc.Zone,
		"description":            zc.Description,
		"distance_to_strike_pct": pricing.DistanceToStrikePct(pq.spot, pq.strike),
		"time_to_expiry_seconds": pq.ttl,
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	profile, err := risk.BuildProfile(s.pricer, pq.spot, pq.strike, pq.ttl, pq.opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleHedge(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	size, err := requiredFloat(r.URL.Query().Get("size"), "size")
	if err != nil {
		writeFailure(w, err)
		return
	}
	hedge, err := risk.DeltaHedge(s.pricer, size, pq.spot, pq.strike, pq.ttl, pq.opts...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hedge)
}

func (s *Server) handleIV(w http.ResponseWriter, r *http.Request) {
	pq, err := s.parsePricing(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	q := r.URL.Query()
	price, err := requiredFloat(q.Get("price"), "price")
	if err != nil {
		writeFailure(w, err)
		return
	}
	isCall, err := parseSide(q.Get("side"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	iv, err := s.pricer.ImpliedVolatility(price, pq.spot, pq.strike, pq.ttl, isCall, pricing.WithSolverRate(pq.rate))
	if err != nil {
		writeFailure(w, err)
		return
	}
	side := "up"
	if !isCall {
		side = "down"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"implied_volatility": iv,
		"market_price":       price,
		"side":               side,
		"inputs": model.PricingInputs{
			Spot: pq.spot, Strike: pq.strike, TimeToExpirySeconds: pq.ttl, Volatility: iv, Rate: pq.rate,
		},
	})
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, err := requiredFloat(q.Get("strike"), "strike")
	if err != nil {
		writeFailure(w, err)
		return
	}
	vol := s.pricer.Settings().DefaultVolatility
	if v := q.Get("vol"); v != "" {
		if vol, err = parseFloat(v, "vol"); err != nil {
			writeFailure(w, err)
			return
		}
	}
	metric := surface.MetricPrice
	if m := q.Get("metric"); m != "" {
		if metric, err = surface.ParseMetric(m); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	g := surface.DefaultGrid(strike, vol)
	g.Rate = s.pricer.Settings().DefaultRate
	if v := q.Get("spot_steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFailure(w, fmt.Errorf("spot_steps=%q: %w", v, errBadParam))
			return
		}
		g.SpotSteps = n
	}
	if v := q.Get("time_steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFailure(w, fmt.Errorf("time_steps=%q: %w", v, errBadParam))
			return
		}
		g.TimeSteps = n
	}

	surf, err := surface.Evaluate(r.Context(), g, metric)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, surf)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	if s.snapshot == nil {
		writeError(w, http.StatusNotFound, errors.New("monitor not running"))
		return
	}
	snap, ok := s.snapshot.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no snapshot yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func parseSide(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "up", "call", "yes":
		return true, nil
	case "down", "put", "no":
		return false, nil
	}
	return false, fmt.Errorf("side=%q: %w", v, errBadParam)
}

func requiredFloat(v, name string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("%s is required: %w", name, errBadParam)
	}
	return parseFloat(v, name)
}

func parseFloat(v, name string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, errBadParam)
	}
	return f, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, surface.ErrInvalidGrid):
		return http.StatusBadRequest
	case errors.Is(err, pricing.ErrNotConverged):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON encodes before writing the header so an unencodable body becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Warnf("encode response: %v", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Debugf("write response: %v", err)
	}
}
