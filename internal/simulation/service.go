// Package simulation turns validated requests into runs of the core engine
// and packages the results for the REST and gRPC surfaces.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbital-power-sim/core"
	"github.com/signalsfoundry/orbital-power-sim/internal/config"
	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/kb"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

const tracerName = "github.com/signalsfoundry/orbital-power-sim/internal/simulation"

// ErrRunFailed wraps every error raised after validation succeeded.
var ErrRunFailed = errors.New("simulation run failed")

// Outcome labels reported to RunObserver.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// RunObserver receives one call per Run.
type RunObserver interface {
	ObserveRun(method, outcome string, elapsed time.Duration, points int)
}

// Options tunes a Service.
type Options struct {
	Limits             Limits
	PresentationPoints int
	MaxDataPoints      int
	Workers            int
	RunTimeout         time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Limits:             DefaultLimits(),
		PresentationPoints: DefaultPresentationPoints,
		MaxDataPoints:      core.DefaultMaxDataPoints,
		Workers:            1,
		RunTimeout:         30 * time.Second,
	}
}

// OptionsFrom converts the simulation config section.
func OptionsFrom(cfg config.SimulationConfig) Options {
	return Options{
		Limits: Limits{
			MaxDurationHours: cfg.MaxDurationHours,
			Policy:           DurationPolicy(cfg.DurationPolicy),
		},
		PresentationPoints: cfg.PresentationPoints,
		MaxDataPoints:      cfg.MaxDataPoints,
		Workers:            cfg.Workers,
		RunTimeout:         cfg.RunTimeout,
	}
}

// Service runs simulations. It is safe for concurrent use; every run
// builds its own providers and engine.
type Service struct {
	opts      Options
	exporter  Exporter
	registry  *kb.RunRegistry
	observer  RunObserver
	ephemeris core.EphemerisProvider
	log       logging.Logger
	now       func() time.Time
	newID     func() string

	tickListeners []func(int, model.DataPoint)
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithExporter enables CSV export for requests that ask for it. Without an
// exporter such requests succeed with a null csv_url.
func WithExporter(e Exporter) ServiceOption {
	return func(s *Service) { s.exporter = e }
}

// WithRegistry records runs in reg instead of a private registry.
func WithRegistry(reg *kb.RunRegistry) ServiceOption {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithObserver reports run outcomes, typically to Prometheus.
func WithObserver(o RunObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithEphemeris replaces the Meeus solar ephemeris.
func WithEphemeris(e core.EphemerisProvider) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.ephemeris = e
		}
	}
}

// WithLogger sets the base logger; request-scoped loggers found in the
// context take precedence.
func WithLogger(l logging.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTickListener receives every full-resolution data point of each
// successful run, in time order, before downsampling. Listeners are shared
// by all runs of the Service.
func WithTickListener(fn func(i int, p model.DataPoint)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.tickListeners = append(s.tickListeners, fn)
		}
	}
}

// WithClock overrides time.Now for created_at stamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// NewService builds a Service. Zero fields in opts fall back to
// DefaultOptions; without WithRegistry runs go to a private registry of
// kb.DefaultCapacity.
func NewService(opts Options, svcOpts ...ServiceOption) *Service {
	def := DefaultOptions()
	if opts.Limits.Policy == "" {
		opts.Limits.Policy = def.Limits.Policy
	}
	if opts.Limits.MaxDurationHours <= 0 {
		opts.Limits.MaxDurationHours = def.Limits.MaxDurationHours
	}
	if opts.PresentationPoints <= 0 {
		opts.PresentationPoints = def.PresentationPoints
	}
	if opts.MaxDataPoints <= 0 {
		opts.MaxDataPoints = def.MaxDataPoints
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = def.RunTimeout
	}

	s := &Service{
		opts:      opts,
		registry:  kb.NewRunRegistry(kb.DefaultCapacity),
		ephemeris: core.SolarEphemeris{},
		log:       logging.Noop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range svcOpts {
		opt(s)
	}
	return s
}

// Registry exposes the run records.
func (s *Service) Registry() *kb.RunRegistry {
	return s.registry
}

// Get returns a recorded run.
func (s *Service) Get(id string) (model.RunRecord, error) {
	return s.registry.Get(id)
}

// List returns recent runs, newest first.
func (s *Service) List(limit int) []model.RunRecord {
	return s.registry.List(limit)
}

// Run validates req and executes it.
//
// A request that fails validation returns a nil response and an error
// wrapping ErrInvalidRequest; nothing is recorded. Any later failure
// returns an error response alongside an error wrapping ErrRunFailed, and
// the failure is recorded. Partial results are never returned.
func (s *Service) Run(ctx context.Context, req model.SimulationRequest) (*model.SimulationResponse, error) {
	started := time.Now()
	id := s.newID()
	method := string(req.PropagationMethod)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "simulation.Run",
		trace.WithAttributes(
			attribute.String("simulation.id", id),
			attribute.String("simulation.method", method),
		))
	defer span.End()

	log := logging.FromContext(ctx, s.log).With(
		logging.String("simulation_id", id),
		logging.String("method", method),
	)

	notes, err := Validate(&req, s.opts.Limits)
	if err != nil {
		s.observe(method, OutcomeRejected, started, 0)
		span.SetStatus(codes.Error, "invalid request")
		span.RecordError(err)
		log.Info(ctx, "simulation request rejected", logging.Err(err))
		return nil, err
	}

	log.Info(ctx, "simulation run starting",
		logging.Float("duration_hours", req.DurationHours),
		logging.Int("time_step_seconds", req.TimeStepSeconds),
	)

	result, err := s.execute(ctx, id, req, log)
	if err != nil {
		return s.fail(ctx, span, log, id, req, started, err)
	}

	var csvURL *string
	if req.ExportCSV && s.exporter != nil {
		url, err := s.exporter.Export(ctx, id, result.points)
		if err != nil {
			return s.fail(ctx, span, log, id, req, started, fmt.Errorf("export csv: %w", err))
		}
		csvURL = &url
	}
	if req.GeneratePlot {
		log.Debug(ctx, "plot generation requested; plots are not produced by this service")
	}

	message := "Simulation completed successfully"
	if len(notes) > 0 {
		message += " (" + strings.Join(notes, "; ") + ")"
	}

	createdAt := model.NewTimestamp(s.now())
	stats := result.stats
	resp := &model.SimulationResponse{
		SimulationID: id,
		Status:       model.StatusSuccess,
		Message:      message,
		Statistics:   &stats,
		DataPoints:   Downsample(result.points, s.opts.PresentationPoints),
		CSVURL:       csvURL,
		CreatedAt:    createdAt,
	}

	s.record(ctx, log, model.RunRecord{
		ID:         id,
		CreatedAt:  createdAt,
		Request:    req,
		Status:     model.StatusSuccess,
		Message:    message,
		Statistics: &stats,
		CSVURL:     csvURL,
	})

	elapsed := time.Since(started)
	s.observe(method, OutcomeSuccess, started, len(result.points))
	span.SetAttributes(
		attribute.Int("simulation.points", len(result.points)),
		attribute.Float64("simulation.eclipse_percentage", stats.EclipsePercentage),
	)
	span.SetStatus(codes.Ok, "")
	log.Info(ctx, "simulation run completed",
		logging.Int("points", stats.TotalDataPoints),
		logging.Float("eclipse_percentage", stats.EclipsePercentage),
		logging.Float("max_power_w", stats.MaxPowerW),
		logging.Duration("elapsed", elapsed),
	)
	return resp, nil
}

type runResult struct {
	points []model.DataPoint
	stats  model.Statistics
}

func (s *Service) execute(ctx context.Context, id string, req model.SimulationRequest, log logging.Logger) (runResult, error) {
	orbit, err := core.NewOrbitProvider(req.OrbitParameters, req.StartTime.Time, satelliteName(id))
	if err != nil {
		return runResult{}, err
	}

	engine := core.NewSimulationEngine(orbit, s.ephemeris, core.NewPanel(req.PanelParameters),
		core.WithWorkers(s.opts.Workers),
		core.WithMaxDataPoints(s.opts.MaxDataPoints),
		core.WithLogger(log),
	)
	for _, fn := range s.tickListeners {
		engine.RegisterTickListener(fn)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	points, err := engine.Run(runCtx, req.SimulationWindow)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return runResult{}, fmt.Errorf("run exceeded %s timeout: %w", s.opts.RunTimeout, err)
		}
		return runResult{}, err
	}

	stats, err := core.ComputeStatistics(points, req.Step(), orbit.OrbitalPeriodMinutes())
	if err != nil {
		return runResult{}, err
	}
	return runResult{points: points, stats: stats}, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, log logging.Logger, id string, req model.SimulationRequest, started time.Time, cause error) (*model.SimulationResponse, error) {
	createdAt := model.NewTimestamp(s.now())
	message := "Simulation failed: " + cause.Error()

	s.record(ctx, log, model.RunRecord{
		ID:        id,
		CreatedAt: createdAt,
		Request:   req,
		Status:    model.StatusError,
		Message:   message,
		Error:     cause.Error(),
	})
	s.observe(string(req.PropagationMethod), OutcomeError, started, 0)

	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	log.Error(ctx, "simulation run failed", logging.Err(cause), logging.Duration("elapsed", time.Since(started)))

	return &model.SimulationResponse{
		SimulationID: id,
		Status:       model.StatusError,
		Message:      message,
		CreatedAt:    createdAt,
	}, fmt.Errorf("%w: %w", ErrRunFailed, cause)
}

func (s *Service) record(ctx context.Context, log logging.Logger, rec model.RunRecord) {
	if err := s.registry.Add(rec); err != nil {
		log.Warn(ctx, "run record not stored", logging.Err(err))
	}
}

func (s *Service) observe(method, outcome string, started time.Time, points int) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveRun(method, outcome, time.Since(started), points)
}

// satelliteName labels TLE providers with the first eight characters of the
// run ID.
func satelliteName(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "SAT_" + id
}
