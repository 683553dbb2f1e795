// Package mesh sweeps extrusion ribbons along polylines and writes them out
// as STL or OBJ.
package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MinRadialSegments is the smallest ring resolution BuildRibbon accepts.
const MinRadialSegments = 2

// degenerateLenSqr treats shorter vectors as zero length.
const degenerateLenSqr = 1e-24

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// Mesh is an indexed triangle mesh with interleaving left to the consumer.
// Positions and Normals hold 3 floats per vertex, UVs hold 2.
type Mesh struct {
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Empty reports whether the mesh has no triangles.
func (m *Mesh) Empty() bool {
	return len(m.Indices) == 0
}

// Append merges other into m, offsetting its indices.
func (m *Mesh) Append(other *Mesh) {
	if other == nil || other.Empty() {
		return
	}
	base := uint32(m.VertexCount())
	m.Positions = append(m.Positions, other.Positions...)
	m.Normals = append(m.Normals, other.Normals...)
	m.UVs = append(m.UVs, other.UVs...)
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, idx+base)
	}
}

// BuildRibbon sweeps an elliptical ring of the given width and height along
// points. Each ring's frame is computed from that point and its neighbors
// only, so rings may twist slightly relative to each other at sharp corners.
// Fewer than two points produce an empty mesh.
func BuildRibbon(points []mgl64.Vec3, width, height float64, radialSegments int) *Mesh {
	m := &Mesh{}
	n := len(points)
	if n < 2 {
		return m
	}
	if radialSegments < MinRadialSegments {
		radialSegments = MinRadialSegments
	}
	ring := radialSegments + 1

	m.Positions = make([]float32, 0, n*ring*3)
	m.Normals = make([]float32, 0, n*ring*3)
	m.UVs = make([]float32, 0, n*ring*2)
	m.Indices = make([]uint32, 0, (n-1)*radialSegments*6)

	halfW := width / 2
	halfH := height / 2
	drop := axisZ.Mul(-halfH)
	tangent := axisX

	for i, p := range points {
		tangent = tangentAt(points, i, tangent)
		normal, binormal := frame(tangent)
		u := float32(float64(i) / float64(n))
		for j := 0; j < ring; j++ {
			theta := float64(j) / float64(radialSegments) * 2 * math.Pi
			cos, sin := math.Cos(theta), math.Sin(theta)
			dir := normal.Mul(cos).Add(binormal.Mul(sin))
			v := p.Add(normal.Mul(cos * halfW)).Add(binormal.Mul(sin * halfH)).Add(drop)
			m.Positions = append(m.Positions, float32(v[0]), float32(v[1]), float32(v[2]))
			m.Normals = append(m.Normals, float32(dir[0]), float32(dir[1]), float32(dir[2]))
			m.UVs = append(m.UVs, u, float32(float64(j)/float64(radialSegments)))
		}
	}

	for i := 0; i < n-1; i++ {
		for j := 0; j < radialSegments; j++ {
			a := uint32(i*ring + j)
			b := uint32((i+1)*ring + j)
			c := b + 1
			d := a + 1
			// counter-clockwise seen from outside
			m.Indices = append(m.Indices, a, d, b, b, d, c)
		}
	}
	return m
}

// tangentAt averages the unit directions of the segments adjacent to point
// i. Zero-length segments are skipped; if nothing usable remains (or the two
// directions cancel) prev is returned.
func tangentAt(points []mgl64.Vec3, i int, prev mgl64.Vec3) mgl64.Vec3 {
	var t mgl64.Vec3
	if i > 0 {
		if d := points[i].Sub(points[i-1]); d.LenSqr() > degenerateLenSqr {
			t = t.Add(d.Normalize())
		}
	}
	if i < len(points)-1 {
		if d := points[i+1].Sub(points[i]); d.LenSqr() > degenerateLenSqr {
			t = t.Add(d.Normalize())
		}
	}
	if t.LenSqr() <= degenerateLenSqr {
		return prev
	}
	return t.Normalize()
}

// frame returns two unit vectors orthogonal to the unit tangent t and to
// each other. The reference axis is the one t is least aligned with; ties
// go to Z then Y so a horizontal tangent gets a lateral normal.
func frame(t mgl64.Vec3) (normal, binormal mgl64.Vec3) {
	ref := axisX
	ax, ay, az := math.Abs(t[0]), math.Abs(t[1]), math.Abs(t[2])
	switch {
	case az <= ax && az <= ay:
		ref = axisZ
	case ay <= ax:
		ref = axisY
	}
	normal = t.Cross(ref).Normalize()
	normal = normal.Sub(t.Mul(normal.Dot(t))).Normalize()
	binormal = t.Cross(normal)
	return normal, binormal
}
