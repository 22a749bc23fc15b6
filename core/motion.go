package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orbital-power-sim/internal/tle"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

// OrbitProvider answers where the satellite is at a given time.
// Implementations are fixed at construction and safe for concurrent use.
type OrbitProvider interface {
	// Position returns the Earth-centred inertial position in kilometres.
	Position(t time.Time) (Vec3, error)
	// OrbitalPeriodMinutes returns the orbital period.
	OrbitalPeriodMinutes() float64
}

// CircularOrbit is an analytic Keplerian circular orbit whose ascending
// node lies on the X axis.
type CircularOrbit struct {
	start           time.Time
	radiusKm        float64
	angularVelocity float64 // rad/s
	periodSeconds   float64
	cosInc, sinInc  float64
}

// NewCircularOrbit builds a circular orbit at the given altitude and
// inclination whose phase angle is zero at start.
func NewCircularOrbit(altitudeKm, inclinationDeg float64, start time.Time) (*CircularOrbit, error) {
	radius := EarthRadiusKm + altitudeKm
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return nil, fmt.Errorf("%w: orbital radius %v km", ErrProviderConstruction, radius)
	}

	// Kepler's third law.
	period := 2 * math.Pi * math.Sqrt(radius*radius*radius/EarthMuKm3S2)
	if math.IsNaN(period) || math.IsInf(period, 0) || period <= 0 {
		return nil, fmt.Errorf("%w: non-finite orbital period for radius %v km", ErrProviderConstruction, radius)
	}

	inc := inclinationDeg * math.Pi / 180
	return &CircularOrbit{
		start:           start,
		radiusKm:        radius,
		angularVelocity: 2 * math.Pi / period,
		periodSeconds:   period,
		cosInc:          math.Cos(inc),
		sinInc:          math.Sin(inc),
	}, nil
}

// Position evaluates the orbit at t. Times before start extrapolate
// backwards along the same orbit.
func (o *CircularOrbit) Position(t time.Time) (Vec3, error) {
	elapsed := t.Sub(o.start).Seconds()
	theta := o.angularVelocity * elapsed

	xo := o.radiusKm * math.Cos(theta)
	yo := o.radiusKm * math.Sin(theta)
	zo := 0.0

	// Rotate the orbital plane about the line of nodes (X axis).
	return Vec3{
		X: xo,
		Y: yo*o.cosInc - zo*o.sinInc,
		Z: yo*o.sinInc + zo*o.cosInc,
	}, nil
}

// OrbitalPeriodMinutes returns the Keplerian period.
func (o *CircularOrbit) OrbitalPeriodMinutes() float64 {
	return o.periodSeconds / 60
}

// TLEOrbit delegates propagation to SGP4 via go-satellite. Positions are in
// the TEME frame, kilometres.
type TLEOrbit struct {
	sat    satellite.Satellite
	name   string
	period float64
}

// NewTLEOrbit validates the element set and initialises SGP4.
//
// go-satellite calls log.Fatal on fields it cannot parse, so the lines are
// run through tle.Parse first and only handed over once every field it reads
// is known to convert.
func NewTLEOrbit(line1, line2, name string) (*TLEOrbit, error) {
	el, err := tle.Parse(line1, line2)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderConstruction, name, err)
	}
	period, err := el.OrbitalPeriodMinutes()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderConstruction, name, err)
	}

	sat := satellite.TLEToSat(el.Line1, el.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: %s: sgp4 init code=%d %s", ErrProviderConstruction, name, sat.Error, sat.ErrorStr)
	}

	return &TLEOrbit{sat: sat, name: name, period: period}, nil
}

// Position propagates the element set to t (whole UTC seconds).
func (o *TLEOrbit) Position(t time.Time) (Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Propagate takes the Satellite by value, so SGP4 error codes are not
	// visible here; the output itself is checked instead.
	pos, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	v := Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	if err := checkPropagated(v); err != nil {
		return Vec3{}, fmt.Errorf("%w: %s at %s: %w", ErrPropagation, o.name, t.Format(time.RFC3339), err)
	}
	return v, nil
}

// checkPropagated rejects SGP4 output that cannot be a satellite position.
// A decayed orbit (SGP4 error 6) still yields finite coordinates, inside
// the Earth.
func checkPropagated(v Vec3) error {
	if !v.IsFinite() {
		return errors.New("non-finite position")
	}
	if r := v.Norm(); r < EarthRadiusKm {
		return fmt.Errorf("position %.1f km from Earth's centre is below the surface", r)
	}
	return nil
}

// OrbitalPeriodMinutes returns 1440 / mean motion.
func (o *TLEOrbit) OrbitalPeriodMinutes() float64 {
	return o.period
}

// NewOrbitProvider selects the provider variant named by the propagation
// method. start is the circular-orbit epoch; name labels the TLE satellite.
func NewOrbitProvider(p model.OrbitParameters, start time.Time, name string) (OrbitProvider, error) {
	switch p.PropagationMethod {
	case model.PropagationCircular:
		o, err := NewCircularOrbit(p.AltitudeKm, p.InclinationDeg, start)
		if err != nil {
			return nil, err
		}
		return o, nil
	case model.PropagationTLE:
		o, err := NewTLEOrbit(p.TLELine1, p.TLELine2, name)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPropagationMethod, p.PropagationMethod)
	}
}
