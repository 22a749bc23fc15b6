package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/orbital-power-sim/model"
)

// ISS sample TLE.
const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

var epoch = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

func mustCircular(t *testing.T, altitude, inclination float64) *CircularOrbit {
	t.Helper()
	o, err := NewCircularOrbit(altitude, inclination, epoch)
	if err != nil {
		t.Fatalf("NewCircularOrbit: %v", err)
	}
	return o
}

func mustPosition(t *testing.T, p OrbitProvider, at time.Time) Vec3 {
	t.Helper()
	v, err := p.Position(at)
	if err != nil {
		t.Fatalf("Position(%v): %v", at, err)
	}
	return v
}

func TestCircularOrbitConstantRadius(t *testing.T) {
	o := mustCircular(t, 420, 51.6)
	want := EarthRadiusKm + 420

	for s := -7200; s <= 3*3600; s += 97 {
		at := epoch.Add(time.Duration(s) * time.Second)
		if got := mustPosition(t, o, at).Norm(); math.Abs(got-want) > 1e-6 {
			t.Fatalf("|r| at %+ds = %v, want %v", s, got, want)
		}
	}
}

func TestCircularOrbitPeriodicity(t *testing.T) {
	o := mustCircular(t, 800, 90)
	period := time.Duration(o.OrbitalPeriodMinutes() * float64(time.Minute))

	for _, offset := range []time.Duration{0, 17 * time.Minute, 3 * time.Hour} {
		a := mustPosition(t, o, epoch.Add(offset))
		b := mustPosition(t, o, epoch.Add(offset+period))
		if d := a.Sub(b).Norm(); d > 1e-3 {
			t.Fatalf("position drift after one period at offset %v: %v km", offset, d)
		}
	}
}

func TestCircularOrbitEquatorial(t *testing.T) {
	o := mustCircular(t, 600, 0)
	for m := 0; m < 200; m += 7 {
		p := mustPosition(t, o, epoch.Add(time.Duration(m)*time.Minute))
		if p.Z != 0 {
			t.Fatalf("z at %d min = %v, want 0", m, p.Z)
		}
	}
}

func TestCircularOrbitPolar(t *testing.T) {
	o := mustCircular(t, 500, 90)
	quarter := time.Duration(o.OrbitalPeriodMinutes() / 4 * float64(time.Minute))

	p := mustPosition(t, o, epoch.Add(quarter))
	r := EarthRadiusKm + 500
	if math.Abs(p.Z-r) > 1e-3 || math.Abs(p.X) > 1e-3 || math.Abs(p.Y) > 1e-3 {
		t.Fatalf("quarter-orbit position = %+v, want (0, 0, %v)", p, r)
	}
}

func TestCircularOrbitStartsOnNodeLine(t *testing.T) {
	o := mustCircular(t, 420, 51.6)
	p := mustPosition(t, o, epoch)
	if p != (Vec3{X: EarthRadiusKm + 420}) {
		t.Fatalf("position at start = %+v, want on +X axis", p)
	}
}

func TestCircularOrbitExtrapolatesBeforeStart(t *testing.T) {
	o := mustCircular(t, 420, 51.6)
	before := mustPosition(t, o, epoch.Add(-10*time.Minute))
	after := mustPosition(t, o, epoch.Add(10*time.Minute))

	// Symmetric about the node: same X, mirrored Y/Z.
	if math.Abs(before.X-after.X) > 1e-9 || math.Abs(before.Y+after.Y) > 1e-9 || math.Abs(before.Z+after.Z) > 1e-9 {
		t.Fatalf("before=%+v after=%+v not mirrored about the node line", before, after)
	}
}

func TestCircularOrbitPeriodISS(t *testing.T) {
	o := mustCircular(t, 420, 51.6)
	if got := o.OrbitalPeriodMinutes(); math.Abs(got-92.7) > 0.3 {
		t.Fatalf("period = %v min, want ~92.7", got)
	}
}

// Exact orbital values belong to go-satellite; we only check the position
// moves and stays at a plausible LEO radius.
func TestTLEOrbitChangesOverTime(t *testing.T) {
	o, err := NewTLEOrbit(issTLE1, issTLE2, "ISS")
	if err != nil {
		t.Fatalf("NewTLEOrbit: %v", err)
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)
	first := mustPosition(t, o, t1)
	second := mustPosition(t, o, t2)

	if first == second {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", first)
	}
	for _, p := range []Vec3{first, second} {
		if r := p.Norm(); r < EarthRadiusKm+300 || r > EarthRadiusKm+500 {
			t.Fatalf("|r| = %v km, outside ISS altitude band", r)
		}
	}
}

func TestTLEOrbitPeriodFromMeanMotion(t *testing.T) {
	o, err := NewTLEOrbit(issTLE1, issTLE2, "ISS")
	if err != nil {
		t.Fatalf("NewTLEOrbit: %v", err)
	}
	if want := 1440 / 15.49370953; math.Abs(o.OrbitalPeriodMinutes()-want) > 1e-9 {
		t.Fatalf("period = %v, want %v", o.OrbitalPeriodMinutes(), want)
	}
}

func TestCheckPropagatedRejectsImpossiblePositions(t *testing.T) {
	cases := []struct {
		name string
		pos  Vec3
		ok   bool
	}{
		{"leo", Vec3{X: EarthRadiusKm + 420}, true},
		{"decayed", Vec3{X: 3000, Y: 2000, Z: -1000}, false},
		{"origin", Vec3{}, false},
		{"nan", Vec3{X: math.NaN(), Y: 7000}, false},
		{"inf", Vec3{Z: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		err := checkPropagated(tc.pos)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: checkPropagated(%+v) = %v, want ok=%v", tc.name, tc.pos, err, tc.ok)
		}
	}
}

func TestTLEOrbitRejectsMalformedLines(t *testing.T) {
	cases := map[string][2]string{
		"empty":       {"", ""},
		"truncated":   {issTLE1[:30], issTLE2},
		"bad numbers": {issTLE1, issTLE2[:52] + "xx.xxxxxxxx" + issTLE2[63:]},
		"zero motion": {issTLE1, issTLE2[:52] + " 0.00000000" + issTLE2[63:]},
	}
	for name, lines := range cases {
		if _, err := NewTLEOrbit(lines[0], lines[1], "bad"); !errors.Is(err, ErrProviderConstruction) {
			t.Fatalf("%s: error = %v, want ErrProviderConstruction", name, err)
		}
	}
}

func TestNewOrbitProviderDispatch(t *testing.T) {
	circ, err := NewOrbitProvider(model.OrbitParameters{
		PropagationMethod: model.PropagationCircular,
		AltitudeKm:        420,
		InclinationDeg:    51.6,
	}, epoch, "SAT")
	if err != nil {
		t.Fatalf("NewOrbitProvider circular: %v", err)
	}
	if _, ok := circ.(*CircularOrbit); !ok {
		t.Fatalf("circular provider type = %T", circ)
	}

	tleProv, err := NewOrbitProvider(model.OrbitParameters{
		PropagationMethod: model.PropagationTLE,
		TLELine1:          issTLE1,
		TLELine2:          issTLE2,
	}, epoch, "SAT")
	if err != nil {
		t.Fatalf("NewOrbitProvider tle: %v", err)
	}
	if _, ok := tleProv.(*TLEOrbit); !ok {
		t.Fatalf("tle provider type = %T", tleProv)
	}

	if _, err := NewOrbitProvider(model.OrbitParameters{PropagationMethod: "keplerian"}, epoch, "SAT"); !errors.Is(err, ErrUnknownPropagationMethod) {
		t.Fatalf("unknown method error = %v, want ErrUnknownPropagationMethod", err)
	}
}
