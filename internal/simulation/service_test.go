package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/core"
	"github.com/signalsfoundry/orbital-power-sim/kb"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

type observation struct {
	method, outcome string
	points          int
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeObserver) ObserveRun(method, outcome string, _ time.Duration, points int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{method, outcome, points})
}

type fakeExporter struct {
	err    error
	points int
}

func (f *fakeExporter) Export(_ context.Context, id string, points []model.DataPoint) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.points = len(points)
	return "/outputs/" + FileName(id), nil
}

type slowEphemeris struct{ delay time.Duration }

func (s slowEphemeris) SunDirection(time.Time) (core.Vec3, error) {
	time.Sleep(s.delay)
	return core.Vec3{X: 1}, nil
}

// stalledEphemeris blocks until released, like a remote ephemeris that
// stopped answering.
type stalledEphemeris struct{ release <-chan struct{} }

func (s stalledEphemeris) SunDirection(time.Time) (core.Vec3, error) {
	<-s.release
	return core.Vec3{X: 1}, nil
}

func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}
}

func issRequest() model.SimulationRequest {
	return Examples()["circular_orbit_iss_like"]
}

func TestServiceRunISS(t *testing.T) {
	obs := &fakeObserver{}
	exp := &fakeExporter{}
	svc := NewService(DefaultOptions(), WithObserver(obs), WithExporter(exp), WithIDGenerator(fixedIDs()))

	resp, err := svc.Run(context.Background(), issRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Status != model.StatusSuccess || resp.Message != "Simulation completed successfully" {
		t.Fatalf("resp = %+v", resp)
	}
	stats := resp.Statistics
	if stats == nil || stats.TotalDataPoints != 181 || len(resp.DataPoints) != 181 {
		t.Fatalf("stats = %+v, points = %d", stats, len(resp.DataPoints))
	}
	if math.Abs(stats.MinAltitudeKm-420) > 1e-6 || math.Abs(stats.MaxAltitudeKm-420) > 1e-6 {
		t.Fatalf("altitude range = [%v, %v], want 420", stats.MinAltitudeKm, stats.MaxAltitudeKm)
	}
	if math.Abs(stats.OrbitalPeriodMinutes-92.7) > 0.3 {
		t.Fatalf("period = %v", stats.OrbitalPeriodMinutes)
	}
	if stats.EclipsePercentage < 0 || stats.EclipsePercentage > 100 {
		t.Fatalf("eclipse percentage = %v", stats.EclipsePercentage)
	}
	if resp.CSVURL == nil || *resp.CSVURL != "/outputs/00000000-0000-0000-0000-000000000001_data.csv" || exp.points != 181 {
		t.Fatalf("csv url = %v, exported %d points", resp.CSVURL, exp.points)
	}
	if resp.PlotURL != nil {
		t.Fatalf("plot url = %v, want nil", *resp.PlotURL)
	}

	rec, err := svc.Get(resp.SimulationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusSuccess || rec.Statistics == nil || rec.Statistics.TotalDataPoints != 181 {
		t.Fatalf("record = %+v", rec)
	}
	if len(obs.obs) != 1 || obs.obs[0] != (observation{"circular", OutcomeSuccess, 181}) {
		t.Fatalf("observations = %+v", obs.obs)
	}
}

func TestServiceRunRejectsInvalidRequest(t *testing.T) {
	obs := &fakeObserver{}
	svc := NewService(DefaultOptions(), WithObserver(obs))

	req := model.DefaultSimulationRequest()
	req.PropagationMethod = model.PropagationTLE

	resp, err := svc.Run(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
	if resp != nil {
		t.Fatalf("resp = %+v, want nil", resp)
	}
	if svc.Registry().Len() != 0 {
		t.Fatalf("rejected request was recorded")
	}
	if len(obs.obs) != 1 || obs.obs[0].outcome != OutcomeRejected {
		t.Fatalf("observations = %+v", obs.obs)
	}
}

func TestServiceRunMalformedTLEFails(t *testing.T) {
	svc := NewService(DefaultOptions())

	req := Examples()["tle_orbit_iss"]
	req.TLELine2 = "2 25544  51.6416 not-a-tle"

	resp, err := svc.Run(context.Background(), req)
	if !errors.Is(err, ErrRunFailed) || !errors.Is(err, core.ErrProviderConstruction) {
		t.Fatalf("error = %v, want ErrRunFailed wrapping ErrProviderConstruction", err)
	}
	if resp == nil || resp.Status != model.StatusError || !strings.HasPrefix(resp.Message, "Simulation failed: ") {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Statistics != nil || resp.DataPoints != nil {
		t.Fatalf("failed run returned partial results: %+v", resp)
	}

	rec, err := svc.Get(resp.SimulationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusError || rec.Error == "" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestServiceRunTLE(t *testing.T) {
	svc := NewService(DefaultOptions())
	resp, err := svc.Run(context.Background(), Examples()["tle_orbit_iss"])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Statistics.TotalDataPoints != 181 {
		t.Fatalf("TotalDataPoints = %d", resp.Statistics.TotalDataPoints)
	}
	if want := 1440 / 15.72125391; math.Abs(resp.Statistics.OrbitalPeriodMinutes-want) > 1e-9 {
		t.Fatalf("period = %v, want %v", resp.Statistics.OrbitalPeriodMinutes, want)
	}
}

func TestServiceRunTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.RunTimeout = 10 * time.Millisecond
	svc := NewService(opts, WithEphemeris(slowEphemeris{delay: 30 * time.Millisecond}))

	req := issRequest()
	req.DurationHours = 0.1

	resp, err := svc.Run(context.Background(), req)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrRunFailed) {
		t.Fatalf("error = %v, want deadline exceeded run failure", err)
	}
	if resp.Status != model.StatusError || !strings.Contains(resp.Message, "timeout") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServiceRunTimeoutWithStalledEphemeris(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	opts := DefaultOptions()
	opts.RunTimeout = 50 * time.Millisecond
	svc := NewService(opts, WithEphemeris(stalledEphemeris{release: release}))

	type outcome struct {
		resp *model.SimulationResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := svc.Run(context.Background(), issRequest())
		done <- outcome{resp, err}
	}()

	select {
	case got := <-done:
		if !errors.Is(got.err, ErrRunFailed) || !errors.Is(got.err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want deadline exceeded run failure", got.err)
		}
		if got.resp == nil || got.resp.Status != model.StatusError {
			t.Fatalf("resp = %+v, want an error response", got.resp)
		}
		if _, err := svc.Get(got.resp.SimulationID); err != nil {
			t.Fatalf("failed run not recorded: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run still blocked 2s after a 50ms run timeout")
	}
}

func TestServiceTickListenerSeesFullResolution(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	svc := NewService(Options{PresentationPoints: 10}, WithTickListener(func(i int, _ model.DataPoint) {
		mu.Lock()
		seen = append(seen, i)
		mu.Unlock()
	}))

	req := issRequest()
	req.DurationHours = 1
	req.TimeStepSeconds = 60
	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.DataPoints) >= 61 {
		t.Fatalf("response carries %d points, want a downsampled series", len(resp.DataPoints))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 61 {
		t.Fatalf("listener saw %d points, want 61", len(seen))
	}
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("listener call %d got index %d", i, idx)
		}
	}
}

func TestServiceRunDownsamplesLongRuns(t *testing.T) {
	exp := &fakeExporter{}
	svc := NewService(DefaultOptions(), WithExporter(exp))

	req := issRequest()
	req.DurationHours = 24

	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Statistics.TotalDataPoints != 1441 {
		t.Fatalf("TotalDataPoints = %d, want 1441", resp.Statistics.TotalDataPoints)
	}
	if len(resp.DataPoints) != 721 {
		t.Fatalf("returned %d points, want 721 (every 2nd)", len(resp.DataPoints))
	}
	if exp.points != 1441 {
		t.Fatalf("exported %d points, want full resolution", exp.points)
	}
}

func TestServiceRunClampsDuration(t *testing.T) {
	opts := DefaultOptions()
	opts.Limits = Limits{MaxDurationHours: 1, Policy: PolicyClamp}
	svc := NewService(opts)

	req := issRequest()
	req.DurationHours = 5

	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Statistics.TotalDataPoints != 61 {
		t.Fatalf("TotalDataPoints = %d, want 61", resp.Statistics.TotalDataPoints)
	}
	if !strings.Contains(resp.Message, "clamped from 5 to 1") {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestServiceRunExportFailure(t *testing.T) {
	svc := NewService(DefaultOptions(), WithExporter(&fakeExporter{err: errors.New("disk full")}))

	resp, err := svc.Run(context.Background(), issRequest())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("error = %v, want ErrRunFailed", err)
	}
	if !strings.Contains(resp.Message, "disk full") {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestServiceRunSkipsExportWhenNotRequested(t *testing.T) {
	exp := &fakeExporter{}
	svc := NewService(DefaultOptions(), WithExporter(exp))

	req := issRequest()
	req.ExportCSV = false
	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.CSVURL != nil || exp.points != 0 {
		t.Fatalf("export ran although not requested")
	}
}

func TestServiceConcurrentRuns(t *testing.T) {
	reg := kb.NewRunRegistry(100)
	opts := DefaultOptions()
	opts.Workers = 2
	svc := NewService(opts, WithRegistry(reg))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := issRequest()
			req.AltitudeKm = 400 + float64(i)*10
			resp, err := svc.Run(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if got := resp.Statistics.MinAltitudeKm; math.Abs(got-req.AltitudeKm) > 1e-6 {
				errs <- fmt.Errorf("run %d altitude = %v, want %v", i, got, req.AltitudeKm)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if reg.Len() != 8 {
		t.Fatalf("recorded %d runs, want 8", reg.Len())
	}
}
