package simulation

import "github.com/signalsfoundry/orbital-power-sim/model"

// DefaultPresentationPoints is the size above which responses are thinned.
const DefaultPresentationPoints = 500

// Downsample keeps every Nth point, N = len/limit, when points holds more
// than limit entries. Order is preserved and the input is not modified; the
// result may exceed limit by up to a factor of two.
func Downsample(points []model.DataPoint, limit int) []model.DataPoint {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	stride := len(points) / limit
	out := make([]model.DataPoint, 0, (len(points)+stride-1)/stride)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	return out
}
