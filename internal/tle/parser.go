// Package tle parses NORAD two-line element sets.
//
// Every field read here is sliced and converted the same way the SGP4
// library does it, so a line set accepted by Parse can be handed to
// go-satellite without tripping its log.Fatal on malformed numbers.
package tle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingLine is returned when either TLE line is blank.
	ErrMissingLine = errors.New("tle line missing")
	// ErrMalformedLine is returned when a TLE line does not follow the
	// fixed-column format.
	ErrMalformedLine = errors.New("malformed tle line")
)

// LineLength is the width of a standard TLE line.
const LineLength = 69

// Elements holds the orbital elements read from a TLE.
type Elements struct {
	NORADID         int
	Epoch           time.Time
	InclinationDeg  float64
	RAANDeg         float64
	Eccentricity    float64
	ArgPerigeeDeg   float64
	MeanAnomalyDeg  float64
	MeanMotionRevPD float64
	Line1           string
	Line2           string
}

// OrbitalPeriodMinutes derives the period from the mean motion
// (revolutions per day).
func (e Elements) OrbitalPeriodMinutes() (float64, error) {
	if math.IsNaN(e.MeanMotionRevPD) || math.IsInf(e.MeanMotionRevPD, 0) || e.MeanMotionRevPD <= 0 {
		return 0, fmt.Errorf("%w: mean motion %v rev/day gives no finite period", ErrMalformedLine, e.MeanMotionRevPD)
	}
	return 1440.0 / e.MeanMotionRevPD, nil
}

// Parse validates both lines and extracts the orbital elements.
func Parse(line1, line2 string) (Elements, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	if strings.TrimSpace(line1) == "" {
		return Elements{}, fmt.Errorf("%w: line 1", ErrMissingLine)
	}
	if strings.TrimSpace(line2) == "" {
		return Elements{}, fmt.Errorf("%w: line 2", ErrMissingLine)
	}
	if err := checkShape(line1, '1'); err != nil {
		return Elements{}, err
	}
	if err := checkShape(line2, '2'); err != nil {
		return Elements{}, err
	}

	p := fieldParser{}
	el := Elements{Line1: line1, Line2: line2}

	// Line 1.
	el.NORADID = int(p.int("line 1 catalog number", strings.TrimSpace(line1[2:7])))
	epochYear := p.int("line 1 epoch year", line1[18:20])
	epochDay := p.float("line 1 epoch day", line1[20:32])
	p.float("line 1 first derivative of mean motion", stripSpaces(line1[33:43]))
	p.float("line 1 second derivative of mean motion", stripSpaces(line1[44:45]+"."+line1[45:50]+"e"+line1[50:52]))
	p.float("line 1 bstar drag term", stripSpaces(line1[53:54]+"."+line1[54:59]+"e"+line1[59:61]))

	// Line 2.
	el.InclinationDeg = p.float("line 2 inclination", stripSpaces(line2[8:16]))
	el.RAANDeg = p.float("line 2 right ascension of ascending node", stripSpaces(line2[17:25]))
	el.Eccentricity = p.float("line 2 eccentricity", "."+line2[26:33])
	el.ArgPerigeeDeg = p.float("line 2 argument of perigee", stripSpaces(line2[34:42]))
	el.MeanAnomalyDeg = p.float("line 2 mean anomaly", stripSpaces(line2[43:51]))
	el.MeanMotionRevPD = p.float("line 2 mean motion", stripSpaces(line2[52:63]))

	if p.err != nil {
		return Elements{}, p.err
	}

	if l2ID, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || l2ID != el.NORADID {
		return Elements{}, fmt.Errorf("%w: catalog numbers differ between lines (%q vs %q)",
			ErrMalformedLine, strings.TrimSpace(line1[2:7]), strings.TrimSpace(line2[2:7]))
	}

	el.Epoch = epochTime(int(epochYear), epochDay)
	return el, nil
}

func checkShape(line string, number byte) error {
	if len(line) < LineLength {
		return fmt.Errorf("%w: line %c has %d columns, want %d", ErrMalformedLine, number, len(line), LineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("%w: line %c must start with %q", ErrMalformedLine, number, string([]byte{number, ' '}))
	}
	return nil
}

// epochTime converts a two-digit year and fractional day-of-year. Years
// 57-99 are 1900s, 00-56 are 2000s.
func epochTime(year int, dayOfYear float64) time.Time {
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour)))
}

// stripSpaces mirrors the SGP4 library, which removes at most two blanks
// before converting a field.
func stripSpaces(s string) string {
	return strings.Replace(s, " ", "", 2)
}

// fieldParser keeps the first conversion error so a sequence of fields can
// be read without repeated error checks.
type fieldParser struct {
	err error
}

func (p *fieldParser) int(name, raw string) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 0)
	if err != nil {
		p.err = fmt.Errorf("%w: %s %q is not an integer", ErrMalformedLine, name, raw)
	}
	return v
}

func (p *fieldParser) float(name, raw string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.err = fmt.Errorf("%w: %s %q is not a number", ErrMalformedLine, name, raw)
	}
	return v
}
