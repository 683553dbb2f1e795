package arcs

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/gcode"
)

const eps = 1e-9

func TestWholeCircle(t *testing.T) {
	start := mgl64.Vec3{5, 5, 0.2}
	pts := Interpolate(Move{Start: start, End: start, I: 10, J: 0, Clockwise: true})

	want := int(math.Round(10 * 2 * math.Pi / ChordLength))
	if len(pts) != want+1 {
		t.Fatalf("expected %d segments, got %d points", want, len(pts))
	}
	if pts[0] != start || pts[len(pts)-1] != start {
		t.Errorf("expected closed polyline at start, got %v .. %v", pts[0], pts[len(pts)-1])
	}
	center := mgl64.Vec3{15, 5, 0.2}
	for k, p := range pts {
		if d := p.Sub(center).Len(); math.Abs(d-10) > 1e-6 {
			t.Fatalf("point %d off circle: distance %f", k, d)
		}
	}
}

func TestQuarterArcDirection(t *testing.T) {
	tests := []struct {
		name      string
		clockwise bool
		end       mgl64.Vec3
		midY      float64
	}{
		// From (10,0) about the origin: CCW to (0,10) passes through +Y.
		{"ccw", false, mgl64.Vec3{0, 10, 0}, 1},
		// CW to (0,-10) passes through -Y.
		{"cw", true, mgl64.Vec3{0, -10, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Move{Start: mgl64.Vec3{10, 0, 0}, End: tt.end, I: -10, J: 0, Clockwise: tt.clockwise}
			pts := Interpolate(m)
			wantSegs := int(math.Round(10 * math.Pi / 2 / ChordLength))
			if len(pts) != wantSegs+1 {
				t.Fatalf("expected %d points, got %d", wantSegs+1, len(pts))
			}
			mid := pts[len(pts)/2]
			if mid.Y()*tt.midY <= 0 {
				t.Errorf("midpoint %v on wrong side", mid)
			}
			if pts[len(pts)-1] != tt.end {
				t.Errorf("last point %v, want %v", pts[len(pts)-1], tt.end)
			}
		})
	}
}

func TestHelicalZ(t *testing.T) {
	m := Move{Start: mgl64.Vec3{10, 0, 0}, End: mgl64.Vec3{-10, 0, 2}, I: -10, J: 0}
	pts := Interpolate(m)
	for k := 1; k < len(pts); k++ {
		if pts[k].Z() < pts[k-1].Z() {
			t.Fatalf("z not monotonic at %d", k)
		}
	}
	if pts[len(pts)-1].Z() != 2 {
		t.Errorf("expected final z 2, got %f", pts[len(pts)-1].Z())
	}
}

func TestRadiusForm(t *testing.T) {
	start := mgl64.Vec3{0, 0, 0}
	end := mgl64.Vec3{2, 0, 0}

	// Positive radius takes the short arc, negative the long one.
	short := Move{Start: start, End: end, R: 2, UseRadius: true, Clockwise: true}
	long := Move{Start: start, End: end, R: -2, UseRadius: true, Clockwise: true}
	_, _, rs, es := short.Sweep()
	_, _, rl, el := long.Sweep()
	if math.Abs(rs-2) > eps || math.Abs(rl-2) > eps {
		t.Errorf("expected radius 2, got %f and %f", rs, rl)
	}
	if es >= math.Pi || el <= math.Pi {
		t.Errorf("expected short < π < long, got %f and %f", es, el)
	}
}

func TestRadiusClampedToHalfChord(t *testing.T) {
	m := Move{Start: mgl64.Vec3{0, 0, 0}, End: mgl64.Vec3{4, 0, 0}, R: 0.5, UseRadius: true}
	i, j, radius, extent := m.Sweep()
	if math.Abs(i-2) > eps || math.Abs(j) > eps {
		t.Errorf("expected center at chord midpoint, got (%f, %f)", i, j)
	}
	if math.Abs(radius-2) > eps || math.Abs(extent-math.Pi) > 1e-9 {
		t.Errorf("expected half circle of radius 2, got r=%f extent=%f", radius, extent)
	}
	pts := Interpolate(m)
	for _, p := range pts {
		if math.IsNaN(p.X()) || math.IsNaN(p.Y()) {
			t.Fatal("NaN in clamped arc")
		}
	}
}

func TestZeroChordRadius(t *testing.T) {
	p := mgl64.Vec3{3, 3, 0}
	pts := Interpolate(Move{Start: p, End: p, R: 5, UseRadius: true})
	if len(pts) != 2 || pts[0] != p || pts[1] != p {
		t.Errorf("expected two points at start, got %v", pts)
	}
}

func TestInchesScaleSegments(t *testing.T) {
	mm := Segments(10, math.Pi, gcode.Millimeters)
	in := Segments(10, math.Pi, gcode.Inches)
	if in != mm*InchScale {
		t.Errorf("expected %d inch segments, got %d", mm*InchScale, in)
	}
	if Segments(0, 0, gcode.Millimeters) != 1 {
		t.Error("expected at least one segment")
	}
}

func TestSegmentsAreCapped(t *testing.T) {
	tests := []struct {
		name           string
		radius, extent float64
		units          gcode.Units
		want           int
	}{
		{"huge radius mm", 1e9, 2 * math.Pi, gcode.Millimeters, MaxSegments},
		{"large radius inches", 1e7, 2 * math.Pi, gcode.Inches, MaxSegments},
		{"infinite radius", math.Inf(1), math.Pi, gcode.Millimeters, MaxSegments},
		{"undefined length", math.Inf(1), 0, gcode.Millimeters, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Segments(tt.radius, tt.extent, tt.units); got != tt.want {
				t.Errorf("expected %d segments, got %d", tt.want, got)
			}
		})
	}
}

func TestHugeCircleIsBounded(t *testing.T) {
	start := mgl64.Vec3{0, 0, 0}
	pts := Interpolate(Move{Start: start, End: start, I: 1e9, Clockwise: true})
	if len(pts) != MaxSegments+1 {
		t.Fatalf("expected %d points, got %d", MaxSegments+1, len(pts))
	}
	if pts[0] != start || pts[len(pts)-1] != start {
		t.Errorf("expected closed polyline, got %v .. %v", pts[0], pts[len(pts)-1])
	}
}
