package model

import "time"

// MonitorSnapshot is the latest priced state of the tracked market.
type MonitorSnapshot struct {
	UpdatedAt        time.Time    `json:"updated_at"`
	Sample           MarketSample `json:"sample"`
	Profile          RiskProfile  `json:"profile"`
	Volatility       float64      `json:"volatility"`
	VolatilitySource string       `json:"volatility_source"`
	ImpliedVol       *float64     `json:"implied_vol,omitempty"`
	Edge             float64      `json:"edge"` // market Up mid minus model Up
}

// PeriodSummary aggregates monitor activity between two summaries.
type PeriodSummary struct {
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	Ticks      int          `json:"ticks"`
	Errors     int          `json:"errors"`
	Alerts     int          `json:"alerts"`
	Markets    int          `json:"markets"`
	MaxScore   float64      `json:"max_score"`
	ZoneCounts map[Zone]int `json:"zone_counts"`
}
