package mesh

import (
	"io"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/pool"
)

const (
	stlHeaderSize = 80
	stlFacetSize  = 4*3*4 + 2
)

// WriteSTL writes m as binary STL. name fills the 80-byte header. Facet
// normals come from triangle winding; degenerate triangles get a zero normal.
func (m *Mesh) WriteSTL(w io.Writer, name string) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	tris := m.TriangleCount()
	buf.Grow(stlHeaderSize + 4 + tris*stlFacetSize)

	var header [stlHeaderSize]byte
	copy(header[:], name)
	for i := len(name); i < stlHeaderSize; i++ {
		header[i] = ' '
	}
	buf.Write(header[:])
	buf.AppendUint32(uint32(tris))

	for t := 0; t < tris; t++ {
		a := m.vertex(m.Indices[3*t])
		b := m.vertex(m.Indices[3*t+1])
		c := m.vertex(m.Indices[3*t+2])
		n := b.Sub(a).Cross(c.Sub(a))
		if n.LenSqr() > degenerateLenSqr {
			n = n.Normalize()
		} else {
			n = mgl64.Vec3{}
		}
		for _, v := range [4]mgl64.Vec3{n, a, b, c} {
			buf.AppendFloat32(float32(v[0]))
			buf.AppendFloat32(float32(v[1]))
			buf.AppendFloat32(float32(v[2]))
		}
		buf.AppendUint16(0)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return errors.MeshExportError("stl", err)
	}
	return nil
}

// WriteOBJ writes m as Wavefront OBJ with positions, normals and texture
// coordinates.
func (m *Mesh) WriteOBJ(w io.Writer) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	writeFloats := func(prefix string, vals []float32) {
		buf.WriteString(prefix)
		for _, v := range vals {
			buf.WriteByte(' ')
			buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		buf.WriteByte('\n')
	}

	for i := 0; i+2 < len(m.Positions); i += 3 {
		writeFloats("v", m.Positions[i:i+3])
	}
	for i := 0; i+2 < len(m.Normals); i += 3 {
		writeFloats("vn", m.Normals[i:i+3])
	}
	for i := 0; i+1 < len(m.UVs); i += 2 {
		writeFloats("vt", m.UVs[i:i+2])
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		buf.WriteByte('f')
		for _, idx := range m.Indices[i : i+3] {
			ref := strconv.FormatUint(uint64(idx)+1, 10)
			buf.WriteByte(' ')
			buf.WriteString(ref)
			buf.WriteByte('/')
			buf.WriteString(ref)
			buf.WriteByte('/')
			buf.WriteString(ref)
		}
		buf.WriteByte('\n')
	}

	if _, err := buf.WriteTo(w); err != nil {
		return errors.MeshExportError("obj", err)
	}
	return nil
}

func (m *Mesh) vertex(idx uint32) mgl64.Vec3 {
	p := m.Positions[3*idx : 3*idx+3]
	return mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
}
