package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// Physical constants shared by every component. They are read-only.
const (
	// EarthRadiusKm is the mean Earth radius used for altitude, shadow and
	// orbit-radius calculations (kilometres).
	EarthRadiusKm = 6371.0

	// EarthMuKm3S2 is Earth's standard gravitational parameter (km³/s²).
	EarthMuKm3S2 = 398600.4418

	// SolarConstantWm2 is the solar irradiance at 1 AU (W/m²).
	SolarConstantWm2 = 1361.0
)

// Vec3 is an Earth-centred inertial vector. Positions are in kilometres;
// directions are dimensionless.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Unit returns v scaled to length 1. Zero-length and non-finite vectors have
// no direction and yield ErrDegenerateGeometry.
func (v Vec3) Unit() (Vec3, error) {
	if !v.IsFinite() {
		return Vec3{}, fmt.Errorf("%w: non-finite vector %+v", ErrDegenerateGeometry, v)
	}
	n := v.Norm()
	if n == 0 {
		return Vec3{}, fmt.Errorf("%w: zero-length vector", ErrDegenerateGeometry)
	}
	return v.Scale(1 / n), nil
}

// Position converts v to the model representation.
func (v Vec3) Position() model.Position {
	return model.Position{X: v.X, Y: v.Y, Z: v.Z}
}

// clamp limits x to [lo, hi].
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
