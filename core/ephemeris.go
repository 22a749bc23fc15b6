package core

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
)

// EphemerisProvider returns the direction from Earth's centre toward the
// Sun. Implementations need not normalise; callers go through SunDirection.
type EphemerisProvider interface {
	SunDirection(t time.Time) (Vec3, error)
}

// SolarEphemeris derives the Sun direction from the apparent equatorial
// coordinates of Meeus' solar theory (true equator and equinox of date).
type SolarEphemeris struct{}

// SunDirection implements EphemerisProvider.
func (SolarEphemeris) SunDirection(t time.Time) (Vec3, error) {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)

	a, d := ra.Rad(), dec.Rad()
	return Vec3{
		X: math.Cos(d) * math.Cos(a),
		Y: math.Cos(d) * math.Sin(a),
		Z: math.Sin(d),
	}, nil
}

// FixedEphemeris always reports the same direction. Useful for studies that
// hold the Sun still, and for tests.
type FixedEphemeris struct {
	Direction Vec3
}

// SunDirection implements EphemerisProvider.
func (f FixedEphemeris) SunDirection(time.Time) (Vec3, error) {
	return f.Direction, nil
}

// SunDirection queries p and normalises the result to unit length.
func SunDirection(p EphemerisProvider, t time.Time) (Vec3, error) {
	raw, err := p.SunDirection(t)
	if err != nil {
		return Vec3{}, fmt.Errorf("sun direction at %s: %w", t.UTC().Format(time.RFC3339), err)
	}
	u, err := raw.Unit()
	if err != nil {
		return Vec3{}, fmt.Errorf("sun direction at %s: %w", t.UTC().Format(time.RFC3339), err)
	}
	return u, nil
}
