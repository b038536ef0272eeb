package pricing

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput reports a precondition violation (non-positive or non-finite input).
	ErrInvalidInput = errors.New("invalid pricing input")
	// ErrNotConverged reports that the implied volatility solver produced no estimate.
	ErrNotConverged = errors.New("implied volatility did not converge")
)

// Reasons the implied volatility solver can stop without an estimate.
const (
	ReasonExpired       = "expired"
	ReasonVegaTooSmall  = "vega too small"
	ReasonMaxIterations = "max iterations reached"
)

// NotConvergedError carries the solver state at the point it gave up.
type NotConvergedError struct {
	Reason     string
	Iterations int
	LastSigma  float64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("implied volatility did not converge: %s after %d iterations (last sigma %.6f)",
		e.Reason, e.Iterations, e.LastSigma)
}

// Is lets errors.Is(err, ErrNotConverged) match.
func (e *NotConvergedError) Is(target error) bool {
	return target == ErrNotConverged
}

func invalid(field string, v float64) error {
	return fmt.Errorf("%s=%v: %w", field, v, ErrInvalidInput)
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, v)
	}
	return nil
}
