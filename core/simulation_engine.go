package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/model"
	"github.com/signalsfoundry/orbital-power-sim/timectrl"
)

// DefaultMaxDataPoints bounds a single run: 24 hours at a 1 second step,
// both endpoints included.
const DefaultMaxDataPoints = 24*3600 + 1

// SimulationEngine samples orbit geometry and panel output over a window.
// An engine owns its providers for the duration of one run; steps share no
// mutable state, so they may be computed concurrently.
type SimulationEngine struct {
	Orbit     OrbitProvider
	Ephemeris EphemerisProvider
	Panel     Panel

	// Workers > 1 computes steps in parallel. Providers must then be safe
	// for concurrent use, which the ones in this package are.
	Workers int
	// MaxDataPoints refuses windows that would produce more points.
	MaxDataPoints int

	log           logging.Logger
	tickListeners []func(int, model.DataPoint)
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithWorkers sets the number of goroutines used to compute steps.
func WithWorkers(n int) EngineOption {
	return func(se *SimulationEngine) { se.Workers = n }
}

// WithMaxDataPoints overrides DefaultMaxDataPoints.
func WithMaxDataPoints(n int) EngineOption {
	return func(se *SimulationEngine) {
		if n > 0 {
			se.MaxDataPoints = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// NewSimulationEngine returns an engine running sequentially with
// DefaultMaxDataPoints and a no-op logger unless opts say otherwise.
func NewSimulationEngine(orbit OrbitProvider, ephemeris EphemerisProvider, panel Panel, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		Orbit:         orbit,
		Ephemeris:     ephemeris,
		Panel:         panel,
		Workers:       1,
		MaxDataPoints: DefaultMaxDataPoints,
		log:           logging.Noop(),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// RegisterTickListener adds a callback that receives every data point in
// time order. Listeners run only after the whole run has succeeded.
func (se *SimulationEngine) RegisterTickListener(fn func(int, model.DataPoint)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step computes the data point for a single instant.
func (se *SimulationEngine) Step(simTime time.Time) (model.DataPoint, error) {
	pos, err := se.Orbit.Position(simTime)
	if err != nil {
		return model.DataPoint{}, err
	}
	sun, err := SunDirection(se.Ephemeris, simTime)
	if err != nil {
		return model.DataPoint{}, err
	}

	shadow, err := InShadow(pos, sun)
	if err != nil {
		return model.DataPoint{}, err
	}
	power, err := se.Panel.Power(pos, sun, shadow)
	if err != nil {
		return model.DataPoint{}, err
	}
	// Reported in eclipse too.
	cosAngle, err := IncidenceCosine(pos, sun)
	if err != nil {
		return model.DataPoint{}, err
	}

	return model.DataPoint{
		Time:        simTime,
		PowerW:      power,
		InShadow:    shadow,
		SunAngleDeg: SunAngleDeg(cosAngle),
		AltitudeKm:  pos.Norm() - EarthRadiusKm,
		Position:    pos.Position(),
	}, nil
}

// Run samples the closed window [start, start+duration]. Any step failure
// aborts the run and no points are returned.
//
// Providers take no context, so the steps run on their own goroutine and Run
// returns ctx.Err() as soon as ctx is done, even if a provider call never
// returns. An abandoned goroutine exits when that call does.
func (se *SimulationEngine) Run(ctx context.Context, window model.SimulationWindow) ([]model.DataPoint, error) {
	tc, err := timectrl.NewTimeController(window.StartTime.Time, window.Step(), window.Duration())
	if err != nil {
		return nil, err
	}
	steps := tc.Steps()
	if steps > se.MaxDataPoints {
		return nil, fmt.Errorf("%w: %d points requested, limit %d", ErrTooManyPoints, steps, se.MaxDataPoints)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	se.log.Debug(ctx, "simulation run starting",
		logging.Int("steps", steps),
		logging.Int("workers", se.Workers),
		logging.String("start", window.StartTime.String()),
	)

	type result struct {
		points []model.DataPoint
		err    error
	}
	done := make(chan result, 1)
	go func() {
		points, err := se.sample(ctx, tc)
		done <- result{points, err}
	}()

	var points []model.DataPoint
	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		points = r.points
	case <-ctx.Done():
		se.log.Warn(ctx, "simulation run abandoned", logging.Err(ctx.Err()))
		return nil, ctx.Err()
	}

	for i, p := range points {
		for _, fn := range se.tickListeners {
			fn(i, p)
		}
	}
	return points, nil
}

func (se *SimulationEngine) sample(ctx context.Context, clock timectrl.SimClock) ([]model.DataPoint, error) {
	if se.Workers > 1 && clock.Steps() > 1 {
		return se.runParallel(ctx, clock)
	}
	return se.runSequential(ctx, clock)
}

func (se *SimulationEngine) runSequential(ctx context.Context, clock timectrl.SimClock) ([]model.DataPoint, error) {
	points := make([]model.DataPoint, 0, clock.Steps())
	err := clock.Each(ctx, func(i int, simTime time.Time) error {
		p, err := se.Step(simTime)
		if err != nil {
			return stepError(i, simTime, err)
		}
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// runParallel splits the step indices into contiguous chunks, one per
// worker, and writes each result into its own slot so order is preserved.
func (se *SimulationEngine) runParallel(ctx context.Context, clock timectrl.SimClock) ([]model.DataPoint, error) {
	steps := clock.Steps()
	workers := se.Workers
	if workers > steps {
		workers = steps
	}
	chunk := (steps + workers - 1) / workers
	points := make([]model.DataPoint, steps)

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < steps; lo += chunk {
		lo, hi := lo, min(lo+chunk, steps)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				simTime := clock.TimeAt(i)
				p, err := se.Step(simTime)
				if err != nil {
					return stepError(i, simTime, err)
				}
				points[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func stepError(i int, simTime time.Time, err error) error {
	return fmt.Errorf("step %d (%s): %w", i, simTime.UTC().Format(time.RFC3339), err)
}
