package toolpath

import (
	"strconv"

	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/mesh"
)

// Mesh merges the ribbons of the extrusion paths in layer, or of every
// committed extrusion path when layer is negative. Travel paths are never
// meshed.
func (j *Job) Mesh(layer, radialSegments int) (*mesh.Mesh, error) {
	var idx []int
	if layer < 0 {
		idx = j.extrusion
	} else {
		members, ok := j.indexer.members(layer)
		if !ok {
			return nil, errors.NotFoundError("layer", strconv.Itoa(layer))
		}
		idx = members
	}

	out := &mesh.Mesh{}
	for _, i := range idx {
		p := j.paths[i]
		if p.Type != Extrusion || !p.Renderable() {
			continue
		}
		out.Append(p.Ribbon(radialSegments))
	}
	return out, nil
}
