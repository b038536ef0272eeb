package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BinarySentinel/internal/model"
)

// Metrics holds the Prometheus collectors for the monitor and the API.
// It satisfies scheduler.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Spot           prometheus.Gauge
	Strike         prometheus.Gauge
	TimeToExpiry   prometheus.Gauge
	ModelUp        prometheus.Gauge
	MarketUp       prometheus.Gauge
	Edge           prometheus.Gauge
	Delta          prometheus.Gauge
	Gamma          prometheus.Gauge
	GammaRiskScore prometheus.Gauge
	Volatility     *prometheus.GaugeVec
	ImpliedVol     prometheus.Gauge
	Zone           *prometheus.GaugeVec

	Ticks      prometheus.Counter
	TickErrors *prometheus.CounterVec
	Alerts     *prometheus.CounterVec
	Requests   *prometheus.CounterVec
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "binary_sentinel", Name: name, Help: help})
	}
	m := &Metrics{
		registry:       prometheus.NewRegistry(),
		Spot:           gauge("spot_price", "Latest underlying spot price"),
		Strike:         gauge("strike_price", "Strike of the tracked market"),
		TimeToExpiry:   gauge("time_to_expiry_seconds", "Seconds until the tracked market settles"),
		ModelUp:        gauge("model_up_price", "Model price of the Up contract"),
		MarketUp:       gauge("market_up_price", "Order book mid of the Up contract"),
		Edge:           gauge("edge", "Market Up mid minus model Up price"),
		Delta:          gauge("delta", "Up contract delta"),
		Gamma:          gauge("gamma", "Up contract gamma"),
		GammaRiskScore: gauge("gamma_risk_score", "Gamma risk score, 0 to 100"),
		ImpliedVol:     gauge("implied_volatility", "Implied volatility of the Up mid, NaN when not converged"),
		Volatility: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "binary_sentinel",
			Name:      "volatility",
			Help:      "Volatility used for the last evaluation",
		}, []string{"source"}),
		Zone: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "binary_sentinel",
			Name:      "zone",
			Help:      "1 for the current risk zone, 0 otherwise",
		}, []string{"zone"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binary_sentinel",
			Name:      "ticks_total",
			Help:      "Monitor ticks that produced a snapshot",
		}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binary_sentinel",
			Name:      "tick_errors_total",
			Help:      "Monitor tick failures by stage",
		}, []string{"stage"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binary_sentinel",
			Name:      "alerts_total",
			Help:      "Alerts sent by kind",
		}, []string{"kind"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binary_sentinel",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Spot, m.Strike, m.TimeToExpiry, m.ModelUp, m.MarketUp, m.Edge,
		m.Delta, m.Gamma, m.GammaRiskScore, m.Volatility, m.ImpliedVol, m.Zone,
		m.Ticks, m.TickErrors, m.Alerts, m.Requests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}

// ObserveSnapshot updates the gauges from the latest monitor state.
func (m *Metrics) ObserveSnapshot(s model.MonitorSnapshot) {
	p := s.Profile
	m.Ticks.Inc()
	m.Spot.Set(p.Inputs.Spot)
	m.Strike.Set(p.Inputs.Strike)
	m.TimeToExpiry.Set(p.Inputs.TimeToExpirySeconds)
	m.ModelUp.Set(p.UpPrice)
	m.MarketUp.Set(s.Sample.Quote.UpPrice)
	m.Edge.Set(s.Edge)
	m.Delta.Set(p.Delta)
	m.Gamma.Set(p.Gamma)
	m.GammaRiskScore.Set(p.GammaRiskScore)

	m.Volatility.Reset()
	m.Volatility.WithLabelValues(s.VolatilitySource).Set(s.Volatility)

	if s.ImpliedVol != nil {
		m.ImpliedVol.Set(*s.ImpliedVol)
	} else {
		m.ImpliedVol.Set(math.NaN())
	}

	for _, z := range model.Zones {
		v := 0.0
		if z == p.Zone {
			v = 1
		}
		m.Zone.WithLabelValues(string(z)).Set(v)
	}
}

// ObserveTickError counts a failed tick stage.
func (m *Metrics) ObserveTickError(stage string) {
	m.TickErrors.WithLabelValues(stage).Inc()
}

// ObserveAlert counts a sent alert.
func (m *Metrics) ObserveAlert(kind string) {
	m.Alerts.WithLabelValues(kind).Inc()
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
