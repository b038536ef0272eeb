package model

// Zone is a named risk regime derived from time remaining and distance to strike.
type Zone string

const (
	ZoneLinearDecay Zone = "linear_decay"
	ZoneLockIn      Zone = "lock_in"
	ZoneTransition  Zone = "transition"
	ZoneGammaRisk   Zone = "gamma_risk"
)

// Zones lists every zone in display order.
var Zones = []Zone{ZoneLinearDecay, ZoneLockIn, ZoneTransition, ZoneGammaRisk}

// ZoneClassification is a zone plus its human-readable description.
type ZoneClassification struct {
	Zone        Zone   `json:"zone"`
	Description string `json:"description"`
}
