package simulation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// OutputsPrefix is the URL path under which exported files are served.
const OutputsPrefix = "/outputs/"

// ErrInvalidFilename is returned for output names that are not plain file
// names inside the output directory.
var ErrInvalidFilename = errors.New("invalid output filename")

// CSVHeader lists the exported columns in order.
var CSVHeader = []string{
	"time", "power_W", "in_shadow", "sun_angle_deg", "altitude_km",
	"position_x", "position_y", "position_z",
}

// Exporter persists a full-resolution run and returns a URL for it.
type Exporter interface {
	Export(ctx context.Context, simulationID string, points []model.DataPoint) (string, error)
}

// CSVExporter writes <Dir>/<id>_data.csv.
type CSVExporter struct {
	Dir string
}

// NewCSVExporter creates dir if needed.
func NewCSVExporter(dir string) (*CSVExporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("csv exporter: empty output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv exporter: %w", err)
	}
	return &CSVExporter{Dir: dir}, nil
}

// FileName returns the export file name for a run.
func FileName(simulationID string) string {
	return simulationID + "_data.csv"
}

// Export implements Exporter. The file is written under a temporary name
// and renamed so readers never see a partial export.
func (e *CSVExporter) Export(ctx context.Context, simulationID string, points []model.DataPoint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := FileName(simulationID)
	final, err := e.Path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(e.Dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, points); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("publish export: %w", err)
	}
	return OutputsPrefix + name, nil
}

// Path resolves an output file name inside Dir, refusing anything that is
// not a plain file name.
func (e *CSVExporter) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return filepath.Join(e.Dir, name), nil
}

// WriteCSV encodes points with CSVHeader columns.
func WriteCSV(w io.Writer, points []model.DataPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	row := make([]string, len(CSVHeader))
	for _, p := range points {
		row[0] = p.Time.UTC().Format(time.RFC3339Nano)
		row[1] = formatFloat(p.PowerW)
		row[2] = strconv.FormatBool(p.InShadow)
		row[3] = formatFloat(p.SunAngleDeg)
		row[4] = formatFloat(p.AltitudeKm)
		row[5] = formatFloat(p.Position.X)
		row[6] = formatFloat(p.Position.Y)
		row[7] = formatFloat(p.Position.Z)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
