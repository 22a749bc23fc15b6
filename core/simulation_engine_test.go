package core

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

func issWindow(hours float64, stepSeconds int) model.SimulationWindow {
	return model.SimulationWindow{
		StartTime:       model.NewTimestamp(epoch),
		DurationHours:   hours,
		TimeStepSeconds: stepSeconds,
	}
}

func newISSEngine(t *testing.T, opts ...EngineOption) *SimulationEngine {
	t.Helper()
	orbit := mustCircular(t, 420, 51.6)
	panel := NewPanel(model.PanelParameters{AreaM2: 15, Efficiency: 0.29})
	return NewSimulationEngine(orbit, SolarEphemeris{}, panel, opts...)
}

// failingOrbit wraps a provider and fails from a given instant onwards.
type failingOrbit struct {
	OrbitProvider
	from time.Time
}

func (f failingOrbit) Position(t time.Time) (Vec3, error) {
	if !t.Before(f.from) {
		return Vec3{}, ErrPropagation
	}
	return f.OrbitProvider.Position(t)
}

func TestSimulationEngineRunISS(t *testing.T) {
	se := newISSEngine(t)
	points, err := se.Run(context.Background(), issWindow(3, 60))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(points) != 181 {
		t.Fatalf("len(points) = %d, want 181", len(points))
	}

	peak := SolarConstantWm2 * 15 * 0.29
	for i, p := range points {
		if want := epoch.Add(time.Duration(i) * time.Minute); !p.Time.Equal(want) {
			t.Fatalf("point %d time = %v, want %v", i, p.Time, want)
		}
		if math.Abs(p.AltitudeKm-420) > 1e-6 {
			t.Fatalf("point %d altitude = %v, want 420", i, p.AltitudeKm)
		}
		if p.PowerW < 0 || p.PowerW > peak+1e-9 {
			t.Fatalf("point %d power = %v outside [0, %v]", i, p.PowerW, peak)
		}
		if p.InShadow && p.PowerW != 0 {
			t.Fatalf("point %d in shadow with power %v", i, p.PowerW)
		}
		if p.SunAngleDeg < 0 || p.SunAngleDeg > 180 {
			t.Fatalf("point %d sun angle = %v", i, p.SunAngleDeg)
		}
	}

	stats, err := ComputeStatistics(points, time.Minute, se.Orbit.OrbitalPeriodMinutes())
	if err != nil {
		t.Fatalf("ComputeStatistics: %v", err)
	}
	if stats.TotalDataPoints != 181 {
		t.Fatalf("TotalDataPoints = %d", stats.TotalDataPoints)
	}
	if stats.EclipsePercentage <= 0 || stats.EclipsePercentage >= 100 {
		t.Fatalf("EclipsePercentage = %v, want a partial eclipse", stats.EclipsePercentage)
	}
	if stats.MaxPowerW <= 0 {
		t.Fatalf("MaxPowerW = %v, want positive", stats.MaxPowerW)
	}
	if math.Abs(stats.OrbitalPeriodMinutes-92.7) > 0.3 {
		t.Fatalf("OrbitalPeriodMinutes = %v", stats.OrbitalPeriodMinutes)
	}
}

func TestSimulationEngineParallelMatchesSequential(t *testing.T) {
	window := issWindow(6, 30)

	seq, err := newISSEngine(t).Run(context.Background(), window)
	if err != nil {
		t.Fatalf("sequential Run: %v", err)
	}
	par, err := newISSEngine(t, WithWorkers(4)).Run(context.Background(), window)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}

	if len(seq) != len(par) {
		t.Fatalf("len mismatch: sequential %d, parallel %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i] != par[i] {
			t.Fatalf("point %d differs:\nseq=%+v\npar=%+v", i, seq[i], par[i])
		}
	}
}

func TestSimulationEngineStepFailureAbortsRun(t *testing.T) {
	for _, workers := range []int{1, 3} {
		se := newISSEngine(t, WithWorkers(workers))
		se.Orbit = failingOrbit{OrbitProvider: se.Orbit, from: epoch.Add(30 * time.Minute)}

		called := false
		se.RegisterTickListener(func(int, model.DataPoint) { called = true })

		points, err := se.Run(context.Background(), issWindow(1, 60))
		if !errors.Is(err, ErrPropagation) {
			t.Fatalf("workers=%d: error = %v, want ErrPropagation", workers, err)
		}
		if points != nil {
			t.Fatalf("workers=%d: got %d points from a failed run", workers, len(points))
		}
		if called {
			t.Fatalf("workers=%d: tick listener fired for a failed run", workers)
		}
	}
}

func TestSimulationEngineTickListenersSeeEveryPointInOrder(t *testing.T) {
	se := newISSEngine(t, WithWorkers(2))

	var mu sync.Mutex
	var seen []int
	se.RegisterTickListener(func(i int, _ model.DataPoint) {
		mu.Lock()
		seen = append(seen, i)
		mu.Unlock()
	})

	points, err := se.Run(context.Background(), issWindow(0.5, 60))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != len(points) {
		t.Fatalf("listener saw %d points, want %d", len(seen), len(points))
	}
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("listener call %d got index %d", i, idx)
		}
	}
}

func TestSimulationEngineRejectsOversizedWindow(t *testing.T) {
	se := newISSEngine(t, WithMaxDataPoints(100))
	if _, err := se.Run(context.Background(), issWindow(2, 60)); !errors.Is(err, ErrTooManyPoints) {
		t.Fatalf("error = %v, want ErrTooManyPoints", err)
	}
	if _, err := se.Run(context.Background(), issWindow(99.0/60, 60)); err != nil {
		t.Fatalf("100 point window: %v", err)
	}
}

func TestSimulationEngineDefaultLimitAllowsFullDayAtOneSecond(t *testing.T) {
	se := newISSEngine(t)
	if se.MaxDataPoints != 86401 {
		t.Fatalf("MaxDataPoints = %d, want 86401", se.MaxDataPoints)
	}
}

func TestSimulationEngineHonoursDeadline(t *testing.T) {
	se := newISSEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	if _, err := se.Run(ctx, issWindow(24, 1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSimulationEngineFixedSunSanity(t *testing.T) {
	orbit := mustCircular(t, 420, 0)
	se := NewSimulationEngine(orbit, FixedEphemeris{Direction: Vec3{X: 1}}, Panel{AreaM2: 1, Efficiency: 1})

	p, err := se.Step(epoch)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if p.InShadow || math.Abs(p.PowerW-SolarConstantWm2) > 1e-9 || p.SunAngleDeg != 0 {
		t.Fatalf("subsolar point = %+v, want full sun at 0 deg", p)
	}

	half := epoch.Add(time.Duration(orbit.OrbitalPeriodMinutes() / 2 * float64(time.Minute)))
	p, err = se.Step(half)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !p.InShadow || p.PowerW != 0 {
		t.Fatalf("anti-solar point = %+v, want eclipse", p)
	}
}

// stalledEphemeris never answers until released.
type stalledEphemeris struct {
	release <-chan struct{}
}

func (s stalledEphemeris) SunDirection(time.Time) (Vec3, error) {
	<-s.release
	return Vec3{X: 1}, nil
}

func TestSimulationEngineReturnsWhenProviderStalls(t *testing.T) {
	for _, workers := range []int{1, 3} {
		release := make(chan struct{})
		se := newISSEngine(t, WithWorkers(workers))
		se.Ephemeris = stalledEphemeris{release: release}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		began := time.Now()
		points, err := se.Run(ctx, issWindow(1, 60))
		elapsed := time.Since(began)
		cancel()
		close(release)

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("workers=%d: error = %v, want context.DeadlineExceeded", workers, err)
		}
		if points != nil {
			t.Fatalf("workers=%d: got %d points from a stalled run", workers, len(points))
		}
		if elapsed > 2*time.Second {
			t.Fatalf("workers=%d: Run took %v after a 50ms deadline", workers, elapsed)
		}
	}
}

func TestSimulationEngineStepPowerMatchesPanelModel(t *testing.T) {
	se := newISSEngine(t)
	points, err := se.Run(context.Background(), issWindow(2, 60))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, p := range points {
		pos, err := se.Orbit.Position(p.Time)
		if err != nil {
			t.Fatalf("Position: %v", err)
		}
		sun, err := SunDirection(se.Ephemeris, p.Time)
		if err != nil {
			t.Fatalf("SunDirection: %v", err)
		}
		want, err := se.Panel.Power(pos, sun, p.InShadow)
		if err != nil {
			t.Fatalf("Power: %v", err)
		}
		if p.PowerW != want {
			t.Fatalf("point %d power = %v, Panel.Power gives %v", i, p.PowerW, want)
		}
	}
}
