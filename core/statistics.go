package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// ComputeStatistics reduces a finished data point sequence. step is the
// sampling interval; periodMinutes comes from the orbit provider.
func ComputeStatistics(points []model.DataPoint, step time.Duration, periodMinutes float64) (model.Statistics, error) {
	if len(points) == 0 {
		return model.Statistics{}, ErrEmptySeries
	}

	maxPower := math.Inf(-1)
	minAlt, maxAlt := math.Inf(1), math.Inf(-1)
	sumPower := 0.0
	shadowCount := 0

	for _, p := range points {
		sumPower += p.PowerW
		maxPower = math.Max(maxPower, p.PowerW)
		minAlt = math.Min(minAlt, p.AltitudeKm)
		maxAlt = math.Max(maxAlt, p.AltitudeKm)
		if p.InShadow {
			shadowCount++
		}
	}

	total := len(points)
	return model.Statistics{
		MaxPowerW:            maxPower,
		AvgPowerW:            sumPower / float64(total),
		MinAltitudeKm:        minAlt,
		MaxAltitudeKm:        maxAlt,
		EclipseTimeSeconds:   float64(shadowCount) * step.Seconds(),
		EclipsePercentage:    float64(shadowCount) / float64(total) * 100,
		OrbitalPeriodMinutes: periodMinutes,
		TotalDataPoints:      total,
	}, nil
}
