package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (c *Collector) registerRunMetrics(reg prometheus.Registerer) error {
	var err error

	c.Runs, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarsim_runs_total",
		Help: "Simulation runs, labeled by propagation method and outcome.",
	}, []string{"method", "status"}), "solarsim_runs_total")
	if err != nil {
		return err
	}

	c.RunDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solarsim_run_duration_seconds",
		Help:    "Wall-clock time spent computing a simulation run.",
		Buckets: latencyBuckets,
	}, []string{"method"}), "solarsim_run_duration_seconds")
	if err != nil {
		return err
	}

	c.RunDataPoints, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solarsim_run_data_points",
		Help:    "Full-resolution data points produced per successful run.",
		Buckets: prometheus.ExponentialBuckets(10, 4, 8),
	}), "solarsim_run_data_points")
	if err != nil {
		return err
	}

	c.RecordedRuns, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solarsim_recorded_runs",
		Help: "Run records currently retained by the in-memory registry.",
	}), "solarsim_recorded_runs")
	return err
}

// ObserveRun records the outcome of one simulation run. points is ignored
// for failed runs.
func (c *Collector) ObserveRun(method, status string, elapsed time.Duration, points int) {
	if c == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(method, status).Inc()
	}
	if c.RunDurations != nil {
		c.RunDurations.WithLabelValues(method).Observe(elapsed.Seconds())
	}
	if c.RunDataPoints != nil && points > 0 {
		c.RunDataPoints.Observe(float64(points))
	}
}

// SetRecordedRuns updates the registry size gauge.
func (c *Collector) SetRecordedRuns(n int) {
	if c == nil || c.RecordedRuns == nil {
		return
	}
	c.RecordedRuns.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
