// Command simulator runs one solar power simulation from flags and prints
// the statistics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/internal/config"
	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/simulation"
	"github.com/signalsfoundry/orbital-power-sim/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	example    string
	table      bool
	every      int
	jsonOut    bool
	csvPath    string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "optional config file (yaml, json or toml)")
	fs.StringVar(&opts.example, "example", "", "start from a named example request: "+strings.Join(exampleNames(), ", "))
	fs.BoolVar(&opts.table, "table", false, "print a per-step table")
	fs.IntVar(&opts.every, "every", 1, "with -table, print every Nth row")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the full response as JSON")
	fs.StringVar(&opts.csvPath, "csv", "", "write full-resolution data points to this CSV file")

	def := model.DefaultSimulationRequest()
	method := fs.String("method", string(def.PropagationMethod), "propagation method: circular or tle")
	altitude := fs.Float64("altitude", def.AltitudeKm, "circular orbit altitude in km")
	inclination := fs.Float64("inclination", def.InclinationDeg, "circular orbit inclination in degrees")
	tle1 := fs.String("tle1", "", "TLE line 1")
	tle2 := fs.String("tle2", "", "TLE line 2")
	area := fs.Float64("area", def.AreaM2, "panel area in m^2")
	efficiency := fs.Float64("efficiency", def.Efficiency, "panel efficiency (0-1)")
	start := fs.String("start", def.StartTime.String(), "start time, ISO-8601 (UTC when no zone is given)")
	hours := fs.Float64("hours", def.DurationHours, "simulation duration in hours")
	step := fs.Int("step", def.TimeStepSeconds, "time step in seconds")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})

	req := def
	if opts.example != "" {
		ex, ok := simulation.Examples()[opts.example]
		if !ok {
			return fmt.Errorf("unknown example %q (have %s)", opts.example, strings.Join(exampleNames(), ", "))
		}
		req = ex
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			req.PropagationMethod = model.PropagationMethod(*method)
		case "altitude":
			req.AltitudeKm = *altitude
		case "inclination":
			req.InclinationDeg = *inclination
		case "tle1":
			req.TLELine1 = *tle1
		case "tle2":
			req.TLELine2 = *tle2
		case "area":
			req.AreaM2 = *area
		case "efficiency":
			req.Efficiency = *efficiency
		case "start":
			ts, err := model.ParseTimestamp(*start)
			if err != nil {
				parseErr = fmt.Errorf("-start: %w", err)
				return
			}
			req.StartTime = ts
		case "hours":
			req.DurationHours = *hours
		case "step":
			req.TimeStepSeconds = *step
		}
	})
	if parseErr != nil {
		return parseErr
	}
	req.GeneratePlot = false
	req.ExportCSV = opts.csvPath != ""

	svcOpts := []simulation.ServiceOption{simulation.WithLogger(log)}
	if opts.csvPath != "" {
		svcOpts = append(svcOpts, simulation.WithExporter(fileExporter{path: opts.csvPath}))
	}
	// The table is fed the full-resolution series, not the response's
	// presentation sample.
	var table *tablePrinter
	if opts.table && !opts.jsonOut {
		table = newTablePrinter(stdout, opts.every)
		svcOpts = append(svcOpts, simulation.WithTickListener(table.Row))
	}
	svc := simulation.NewService(simulation.OptionsFrom(cfg.Simulation), svcOpts...)

	started := time.Now()
	resp, err := svc.Run(ctx, req)
	if err != nil {
		var verr *simulation.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				fmt.Fprintf(stderr, "  %s: %s\n", v.Field, v.Message)
			}
		}
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if table != nil {
		if err := table.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}
	printSummary(stdout, req, resp, time.Since(started))
	if opts.csvPath != "" {
		fmt.Fprintf(stdout, "CSV written to %s\n", opts.csvPath)
	}
	return nil
}

func exampleNames() []string {
	return []string{"circular_orbit_iss_like", "circular_orbit_polar", "tle_orbit_iss"}
}

// tablePrinter prints every Nth data point plus the final one.
type tablePrinter struct {
	tw      *tabwriter.Writer
	every   int
	pending *model.DataPoint
}

func newTablePrinter(w io.Writer, every int) *tablePrinter {
	if every < 1 {
		every = 1
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "time\tpower_W\tshadow\tsun_angle_deg\taltitude_km\t")
	return &tablePrinter{tw: tw, every: every}
}

// Row is registered as a tick listener.
func (t *tablePrinter) Row(i int, p model.DataPoint) {
	if i%t.every != 0 {
		t.pending = &p
		return
	}
	t.pending = nil
	t.write(p)
}

func (t *tablePrinter) write(p model.DataPoint) {
	fmt.Fprintf(t.tw, "%s\t%.2f\t%v\t%.2f\t%.2f\t\n",
		p.Time.UTC().Format(time.RFC3339), p.PowerW, p.InShadow, p.SunAngleDeg, p.AltitudeKm)
}

// Flush writes the final row if it was skipped and flushes the table.
func (t *tablePrinter) Flush() error {
	if t.pending != nil {
		t.write(*t.pending)
		t.pending = nil
	}
	return t.tw.Flush()
}

func printSummary(w io.Writer, req model.SimulationRequest, resp *model.SimulationResponse, elapsed time.Duration) {
	s := resp.Statistics
	fmt.Fprintf(w, "Simulation %s (%s, %.1f h @ %d s)\n", resp.SimulationID, req.PropagationMethod, req.DurationHours, req.TimeStepSeconds)
	fmt.Fprintf(w, "  %s\n", resp.Message)
	if s == nil {
		return
	}
	fmt.Fprintf(w, "  data points:      %d\n", s.TotalDataPoints)
	fmt.Fprintf(w, "  orbital period:   %.2f min\n", s.OrbitalPeriodMinutes)
	fmt.Fprintf(w, "  altitude:         %.2f - %.2f km\n", s.MinAltitudeKm, s.MaxAltitudeKm)
	fmt.Fprintf(w, "  power max / avg:  %.2f / %.2f W\n", s.MaxPowerW, s.AvgPowerW)
	fmt.Fprintf(w, "  eclipse:          %.0f s (%.2f%%)\n", s.EclipseTimeSeconds, s.EclipsePercentage)
	fmt.Fprintf(w, "  elapsed:          %s\n", elapsed.Round(time.Millisecond))
}

// fileExporter writes a run to a caller-chosen path.
type fileExporter struct {
	path string
}

func (e fileExporter) Export(_ context.Context, _ string, points []model.DataPoint) (string, error) {
	f, err := os.Create(e.path)
	if err != nil {
		return "", err
	}
	if err := simulation.WriteCSV(f, points); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return e.path, nil
}
