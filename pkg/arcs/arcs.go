// Package arcs expands G2/G3 circular moves into polylines.
//
// Planning follows the Marlin plan_arc() shape: find the center, measure the
// angular travel, pick a segment count from a fixed chord length and walk
// the angle. Arcs are always in the XY plane with z interpolated linearly.
package arcs

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/gcode"
)

const (
	// ChordLength is the arc length in millimeters covered by one segment.
	ChordLength = 1.8
	// InchScale multiplies the segment count when coordinates are in inches.
	InchScale = 25
	// MaxSegments caps the segments emitted for one move. Larger arcs get
	// longer chords instead.
	MaxSegments = 1 << 16
)

// Move describes one circular move.
type Move struct {
	Start, End mgl64.Vec3

	// I, J are the center offset from Start. Ignored when UseRadius is set.
	I, J float64
	// R is the signed radius form. A negative radius selects the long way round.
	R         float64
	UseRadius bool

	Clockwise bool
	Units     gcode.Units
}

// Center resolves the arc center offset (i, j) relative to Start.
//
// For the radius form the radius is raised to half the chord when the chord
// is too long to span, so the result is always finite.
func (m Move) Center() (i, j float64) {
	if !m.UseRadius {
		return m.I, m.J
	}
	dx := m.End.X() - m.Start.X()
	dy := m.End.Y() - m.Start.Y()
	d := math.Hypot(dx, dy)
	if d == 0 {
		return 0, 0
	}
	r := m.R
	h := math.Sqrt(math.Max(0, r*r-d*d/4))
	side := 1.0
	if m.Clockwise != (r < 0) {
		side = -1
	}
	// midpoint + h along the chord's left normal
	cx := dx/2 + side*h*(-dy/d)
	cy := dy/2 + side*h*(dx/d)
	return cx, cy
}

// Segments returns the number of line segments for an arc of the given
// radius and angular extent, between 1 and MaxSegments.
func Segments(radius, extent float64, units gcode.Units) int {
	n := math.Round(radius * extent / ChordLength)
	if units == gcode.Inches {
		n *= InchScale
	}
	switch {
	case math.IsNaN(n) || n < 1:
		return 1
	case n > MaxSegments:
		return MaxSegments
	}
	return int(n)
}

// Sweep returns the center offset, radius and unsigned angular extent in
// [0, 2π), or exactly 2π when start and end coincide in XY.
func (m Move) Sweep() (i, j, radius, extent float64) {
	i, j = m.Center()
	radius = math.Hypot(i, j)

	if m.Start.X() == m.End.X() && m.Start.Y() == m.End.Y() {
		return i, j, radius, 2 * math.Pi
	}

	cx := m.Start.X() + i
	cy := m.Start.Y() + j
	startAngle := math.Atan2(-j, -i)
	endAngle := math.Atan2(m.End.Y()-cy, m.End.X()-cx)

	if m.Clockwise {
		extent = startAngle - endAngle
	} else {
		extent = endAngle - startAngle
	}
	extent = math.Mod(extent, 2*math.Pi)
	if extent < 0 {
		extent += 2 * math.Pi
	}
	if extent >= 2*math.Pi {
		extent = 0
	}
	return i, j, radius, extent
}

// Interpolate returns segments+1 points from Start to End. The first and
// last points are exactly Start and End.
func Interpolate(m Move) []mgl64.Vec3 {
	i, j, radius, extent := m.Sweep()
	segments := Segments(radius, extent, m.Units)

	cx := m.Start.X() + i
	cy := m.Start.Y() + j
	theta := math.Atan2(-j, -i)
	step := extent / float64(segments)
	if m.Clockwise {
		step = -step
	}
	dz := (m.End.Z() - m.Start.Z()) / float64(segments)

	points := make([]mgl64.Vec3, segments+1)
	points[0] = m.Start
	for k := 1; k < segments; k++ {
		a := theta + float64(k)*step
		points[k] = mgl64.Vec3{
			cx + radius*math.Cos(a),
			cy + radius*math.Sin(a),
			m.Start.Z() + float64(k)*dz,
		}
	}
	points[segments] = m.End
	return points
}
