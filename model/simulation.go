package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PropagationMethod selects which orbit position provider backs a run.
type PropagationMethod string

const (
	PropagationCircular PropagationMethod = "circular"
	PropagationTLE      PropagationMethod = "tle"
)

// RunStatus is the outcome reported for a simulation run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusError   RunStatus = "error"
)

// timestampLayouts are tried in order when decoding a Timestamp. Zone-less
// layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Timestamp is a UTC instant that accepts ISO-8601 text with or without a
// zone designator.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses an ISO-8601 timestamp. Text without a zone is UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q (want ISO-8601, e.g. 2024-01-15T00:00:00)", s)
}

// MustParseTimestamp is ParseTimestamp for compile-time constants.
func MustParseTimestamp(s string) Timestamp {
	ts, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return ts
}

func (t Timestamp) String() string {
	return t.UTC().Format(time.RFC3339)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// OrbitParameters describes the orbit. Only the fields of the selected
// propagation method are authoritative; the circular orbit epoch is the
// simulation window's start time.
type OrbitParameters struct {
	PropagationMethod PropagationMethod `json:"propagation_method"`
	AltitudeKm        float64           `json:"altitude_km"`
	InclinationDeg    float64           `json:"inclination_deg"`
	TLELine1          string            `json:"tle_line1,omitempty"`
	TLELine2          string            `json:"tle_line2,omitempty"`
}

// PanelParameters describes the solar panel.
type PanelParameters struct {
	AreaM2     float64 `json:"panel_area_m2"`
	Efficiency float64 `json:"panel_efficiency"`
}

// SimulationWindow is the closed time interval sampled by a run.
type SimulationWindow struct {
	StartTime       Timestamp `json:"start_time"`
	DurationHours   float64   `json:"duration_hours"`
	TimeStepSeconds int       `json:"time_step_seconds"`
}

// Duration returns the window length rounded to the nearest nanosecond.
func (w SimulationWindow) Duration() time.Duration {
	return time.Duration(w.DurationHours*float64(time.Hour) + 0.5)
}

// Step returns the sampling interval.
func (w SimulationWindow) Step() time.Duration {
	return time.Duration(w.TimeStepSeconds) * time.Second
}

// End returns the last instant included in the window.
func (w SimulationWindow) End() time.Time {
	return w.StartTime.Time.Add(w.Duration())
}

// SimulationRequest is the flat request accepted by the REST and gRPC
// surfaces.
type SimulationRequest struct {
	OrbitParameters
	PanelParameters
	SimulationWindow

	GeneratePlot bool `json:"generate_plot"`
	ExportCSV    bool `json:"export_csv"`
}

// DefaultSimulationRequest returns the request used when fields are omitted.
func DefaultSimulationRequest() SimulationRequest {
	return SimulationRequest{
		OrbitParameters: OrbitParameters{
			PropagationMethod: PropagationCircular,
			AltitudeKm:        500,
			InclinationDeg:    51.6,
		},
		PanelParameters: PanelParameters{
			AreaM2:     15,
			Efficiency: 0.29,
		},
		SimulationWindow: SimulationWindow{
			StartTime:       MustParseTimestamp("2024-01-15T00:00:00"),
			DurationHours:   3,
			TimeStepSeconds: 60,
		},
		GeneratePlot: true,
		ExportCSV:    true,
	}
}

// DecodeSimulationRequest decodes JSON on top of the defaults so absent
// fields keep their default values.
func DecodeSimulationRequest(data []byte) (SimulationRequest, error) {
	req := DefaultSimulationRequest()
	if err := json.Unmarshal(data, &req); err != nil {
		return SimulationRequest{}, err
	}
	return req, nil
}

// Position is an Earth-centred inertial position in kilometres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DataPoint is one simulation sample.
type DataPoint struct {
	Time        time.Time `json:"time"`
	PowerW      float64   `json:"power_W"`
	InShadow    bool      `json:"in_shadow"`
	SunAngleDeg float64   `json:"sun_angle_deg"`
	AltitudeKm  float64   `json:"altitude_km"`

	// Position is kept for full-resolution export only.
	Position Position `json:"-"`
}

// Statistics summarises a completed data point sequence.
type Statistics struct {
	MaxPowerW            float64 `json:"max_power_W"`
	AvgPowerW            float64 `json:"avg_power_W"`
	MinAltitudeKm        float64 `json:"min_altitude_km"`
	MaxAltitudeKm        float64 `json:"max_altitude_km"`
	EclipseTimeSeconds   float64 `json:"eclipse_time_seconds"`
	EclipsePercentage    float64 `json:"eclipse_percentage"`
	OrbitalPeriodMinutes float64 `json:"orbital_period_minutes"`
	TotalDataPoints      int     `json:"total_data_points"`
}

// SimulationResponse is returned for every run, successful or not.
type SimulationResponse struct {
	SimulationID string      `json:"simulation_id"`
	Status       RunStatus   `json:"status"`
	Message      string      `json:"message"`
	Statistics   *Statistics `json:"statistics,omitempty"`
	DataPoints   []DataPoint `json:"data_points,omitempty"`
	PlotURL      *string     `json:"plot_url"`
	CSVURL       *string     `json:"csv_url"`
	CreatedAt    Timestamp   `json:"created_at"`
}
