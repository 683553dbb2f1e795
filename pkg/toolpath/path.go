// Package toolpath replays G-code commands into classified paths, indexes
// them into layers and hands out line and ribbon geometry per path.
package toolpath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/gcode"
	"gcode-toolpath/pkg/mesh"
)

// State is the simulated machine register. A Job owns exactly one.
type State struct {
	X, Y, Z, E float64
	R, I, J    float64
	Tool       int
	Units      gcode.Units
	HasMoved   bool
}

// Position returns the XYZ position.
func (s State) Position() mgl64.Vec3 {
	return mgl64.Vec3{s.X, s.Y, s.Z}
}

// TravelType classifies a path.
type TravelType int

const (
	Travel TravelType = iota
	Extrusion
)

func (t TravelType) String() string {
	if t == Extrusion {
		return "extrusion"
	}
	return "travel"
}

// Path is a run of consecutive moves sharing one travel type.
type Path struct {
	// Vertices is a flat xyz buffer; its length is always a multiple of 3.
	Vertices []float64
	Type     TravelType
	Width    float64
	Height   float64
	Tool     int
	// Start is the machine state when the first vertex was recorded.
	Start State
}

func (p *Path) appendPoint(v mgl64.Vec3) {
	p.Vertices = append(p.Vertices, v[0], v[1], v[2])
}

// Len returns the number of points.
func (p *Path) Len() int {
	return len(p.Vertices) / 3
}

// Point returns point i.
func (p *Path) Point(i int) mgl64.Vec3 {
	return mgl64.Vec3{p.Vertices[3*i], p.Vertices[3*i+1], p.Vertices[3*i+2]}
}

// Points copies the vertex buffer out as vectors.
func (p *Path) Points() []mgl64.Vec3 {
	pts := make([]mgl64.Vec3, p.Len())
	for i := range pts {
		pts[i] = p.Point(i)
	}
	return pts
}

// Renderable reports whether the path has at least one segment.
func (p *Path) Renderable() bool {
	return p.Len() >= 2
}

// LineGeometry returns line-segment pairs as float32 xyz, ready for a line
// primitive. A path with fewer than 2 points has none.
func (p *Path) LineGeometry() []float32 {
	n := p.Len()
	if n < 2 {
		return nil
	}
	out := make([]float32, 0, (n-1)*6)
	for i := 0; i < n-1; i++ {
		for _, v := range p.Vertices[3*i : 3*i+6] {
			out = append(out, float32(v))
		}
	}
	return out
}

// Ribbon sweeps the path into a mesh using its width and height.
func (p *Path) Ribbon(radialSegments int) *mesh.Mesh {
	if !p.Renderable() {
		return &mesh.Mesh{}
	}
	return mesh.BuildRibbon(p.Points(), p.Width, p.Height, radialSegments)
}

// Length returns the polyline length.
func (p *Path) Length() float64 {
	var total float64
	for i := 1; i < p.Len(); i++ {
		total += p.Point(i).Sub(p.Point(i - 1)).Len()
	}
	return total
}

// ZRange returns the lowest and highest vertex z.
func (p *Path) ZRange() (lo, hi float64) {
	if p.Len() == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := 2; i < len(p.Vertices); i += 3 {
		lo = math.Min(lo, p.Vertices[i])
		hi = math.Max(hi, p.Vertices[i])
	}
	return lo, hi
}

// planar reports whether every vertex shares one z value.
func (p *Path) planar() bool {
	for i := 5; i < len(p.Vertices); i += 3 {
		if p.Vertices[i] != p.Vertices[2] {
			return false
		}
	}
	return true
}

// hasZStep reports whether two consecutive vertices differ in z by more
// than tolerance.
func (p *Path) hasZStep(tolerance float64) bool {
	for i := 5; i < len(p.Vertices); i += 3 {
		if math.Abs(p.Vertices[i]-p.Vertices[i-3]) > tolerance {
			return true
		}
	}
	return false
}

func (p *Path) firstZ() float64 {
	if len(p.Vertices) == 0 {
		return 0
	}
	return p.Vertices[2]
}

func (p *Path) lastZ() float64 {
	if len(p.Vertices) == 0 {
		return 0
	}
	return p.Vertices[len(p.Vertices)-1]
}
