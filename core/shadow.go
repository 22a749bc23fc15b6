package core

import (
	"fmt"
	"math"
)

// InShadow reports whether a satellite at position (km) lies inside Earth's
// cylindrical shadow for the given unit Sun direction. Penumbra and the
// angular size of the solar disk are ignored: the cylinder radius is
// EarthRadiusKm.
func InShadow(position, sunDir Vec3) (bool, error) {
	dist := position.Norm()
	if dist == 0 || math.IsNaN(dist) || math.IsInf(dist, 0) {
		return false, fmt.Errorf("%w: satellite position %+v", ErrDegenerateGeometry, position)
	}
	satDir := position.Scale(1 / dist)

	// Sunlit hemisphere: nothing can block the Sun.
	if satDir.Dot(sunDir) > 0 {
		return false, nil
	}

	// Distance from the satellite to the Earth-Sun line. The projection is
	// non-positive on the dark side; rounding can push the radicand slightly
	// negative when the satellite sits on the anti-Sun axis.
	projection := position.Dot(sunDir)
	perp := math.Sqrt(math.Max(dist*dist-projection*projection, 0))
	return perp < EarthRadiusKm, nil
}
