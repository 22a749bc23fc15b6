package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// Panel is a flat solar panel whose normal points anti-nadir (away from
// Earth's centre). No sun tracking or attitude control is modelled.
type Panel struct {
	AreaM2     float64
	Efficiency float64
}

// NewPanel converts request parameters.
func NewPanel(p model.PanelParameters) Panel {
	return Panel{AreaM2: p.AreaM2, Efficiency: p.Efficiency}
}

// IncidenceCosine returns the cosine of the angle between the anti-nadir
// panel normal at position and the unit Sun direction.
func IncidenceCosine(position, sunDir Vec3) (float64, error) {
	normal, err := position.Unit()
	if err != nil {
		return 0, fmt.Errorf("panel normal: %w", err)
	}
	return normal.Dot(sunDir), nil
}

// SunAngleDeg returns the Sun incidence angle in degrees, in [0, 180].
func SunAngleDeg(cosAngle float64) float64 {
	return math.Acos(clamp(cosAngle, -1, 1)) * 180 / math.Pi
}

// OutputForCosine returns the electrical power for a given incidence cosine
// when the panel is illuminated. The Sun behind the panel plane yields 0.
func (p Panel) OutputForCosine(cosAngle float64) float64 {
	if cosAngle <= 0 {
		return 0
	}
	return SolarConstantWm2 * p.AreaM2 * p.Efficiency * cosAngle
}

// Power returns the instantaneous output in watts.
func (p Panel) Power(position, sunDir Vec3, inShadow bool) (float64, error) {
	if inShadow {
		return 0, nil
	}
	cosAngle, err := IncidenceCosine(position, sunDir)
	if err != nil {
		return 0, err
	}
	return p.OutputForCosine(cosAngle), nil
}
