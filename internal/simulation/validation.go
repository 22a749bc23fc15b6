package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// ErrInvalidRequest is returned when a request fails validation. The core
// is never invoked for such requests.
var ErrInvalidRequest = errors.New("invalid simulation request")

// DurationPolicy decides what happens to a duration above the maximum.
type DurationPolicy string

const (
	PolicyReject DurationPolicy = "reject"
	PolicyClamp  DurationPolicy = "clamp"
)

// Accepted parameter ranges, inclusive.
const (
	MinAltitudeKm      = 200.0
	MaxAltitudeKm      = 2000.0
	MinInclinationDeg  = 0.0
	MaxInclinationDeg  = 180.0
	MinPanelAreaM2     = 1.0
	MaxPanelAreaM2     = 100.0
	MinPanelEfficiency = 0.1
	MaxPanelEfficiency = 0.5
	MinDurationHours   = 0.1
	MinTimeStepSeconds = 1
	MaxTimeStepSeconds = 300
)

// Limits carries the configurable part of validation.
type Limits struct {
	MaxDurationHours float64
	Policy           DurationPolicy
}

// DefaultLimits rejects runs longer than a day.
func DefaultLimits() Limits {
	return Limits{MaxDurationHours: 24, Policy: PolicyReject}
}

// Violation is one failed check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a request.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Validate checks req against the accepted ranges. Under PolicyClamp an
// over-long duration is shortened in place and described in the returned
// notes; every other problem is collected into a *ValidationError.
func Validate(req *model.SimulationRequest, limits Limits) (notes []string, err error) {
	var violations []Violation
	add := func(field, format string, args ...any) {
		violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	inRange := func(v, lo, hi float64) bool {
		return !math.IsNaN(v) && v >= lo && v <= hi
	}

	switch req.PropagationMethod {
	case model.PropagationCircular:
		if !inRange(req.AltitudeKm, MinAltitudeKm, MaxAltitudeKm) {
			add("altitude_km", "must be between %g and %g, got %g", MinAltitudeKm, MaxAltitudeKm, req.AltitudeKm)
		}
		if !inRange(req.InclinationDeg, MinInclinationDeg, MaxInclinationDeg) {
			add("inclination_deg", "must be between %g and %g, got %g", MinInclinationDeg, MaxInclinationDeg, req.InclinationDeg)
		}
	case model.PropagationTLE:
		if strings.TrimSpace(req.TLELine1) == "" || strings.TrimSpace(req.TLELine2) == "" {
			add("tle_lines", "tle_line1 and tle_line2 are required when using TLE propagation")
		}
	default:
		add("propagation_method", "must be %q or %q, got %q", model.PropagationCircular, model.PropagationTLE, req.PropagationMethod)
	}

	if !inRange(req.AreaM2, MinPanelAreaM2, MaxPanelAreaM2) {
		add("panel_area_m2", "must be between %g and %g, got %g", MinPanelAreaM2, MaxPanelAreaM2, req.AreaM2)
	}
	if !inRange(req.Efficiency, MinPanelEfficiency, MaxPanelEfficiency) {
		add("panel_efficiency", "must be between %g and %g, got %g", MinPanelEfficiency, MaxPanelEfficiency, req.Efficiency)
	}
	if req.StartTime.IsZero() {
		add("start_time", "is required")
	}
	if req.TimeStepSeconds < MinTimeStepSeconds || req.TimeStepSeconds > MaxTimeStepSeconds {
		add("time_step_seconds", "must be between %d and %d, got %d", MinTimeStepSeconds, MaxTimeStepSeconds, req.TimeStepSeconds)
	}

	maxHours := limits.MaxDurationHours
	switch {
	case math.IsNaN(req.DurationHours) || math.IsInf(req.DurationHours, 0):
		add("duration_hours", "must be a finite number")
	case req.DurationHours < MinDurationHours:
		add("duration_hours", "must be at least %g, got %g", MinDurationHours, req.DurationHours)
	case maxHours > 0 && req.DurationHours > maxHours:
		if limits.Policy == PolicyClamp {
			notes = append(notes, fmt.Sprintf("duration_hours clamped from %g to %g", req.DurationHours, maxHours))
			req.DurationHours = maxHours
		} else {
			add("duration_hours", "must be at most %g, got %g", maxHours, req.DurationHours)
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return notes, nil
}
