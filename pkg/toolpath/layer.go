package toolpath

import (
	"slices"

	"gcode-toolpath/pkg/errors"
)

// DefaultLayerTolerance is the smallest z step that may start a new layer.
const DefaultLayerTolerance = 0.05

// Layer groups paths printed at one height. Paths holds indices into the
// owning Job's path list.
type Layer struct {
	Z      float64 `json:"z"`
	Height float64 `json:"height"`
	Paths  []int   `json:"paths"`
}

// LayerIndexer sorts committed paths into layers. Once an extrusion path is
// found to span more than one z, every layer is dropped and the indexer
// stays disabled.
type LayerIndexer struct {
	tolerance float64
	layers    []Layer
	disabled  bool
}

// IndexerSnapshot records the indexer shape before a commit so the commit
// can be undone.
type IndexerSnapshot struct {
	layers  int
	members int
}

// NewLayerIndexer creates an indexer. A non-positive tolerance selects
// DefaultLayerTolerance.
func NewLayerIndexer(tolerance float64) *LayerIndexer {
	if tolerance <= 0 {
		tolerance = DefaultLayerTolerance
	}
	return &LayerIndexer{tolerance: tolerance}
}

// Tolerance returns the z step threshold.
func (li *LayerIndexer) Tolerance() float64 {
	return li.tolerance
}

// SortIn files paths[index] into the layer list. It must be called once per
// committed path in creation order. A non-planar extrusion returns a
// TOOLPATH_NON_PLANAR error and disables the indexer; later calls are
// no-ops.
func (li *LayerIndexer) SortIn(paths []*Path, index int) error {
	if li.disabled {
		return nil
	}
	p := paths[index]

	if p.Type == Extrusion && !p.planar() {
		lo, hi := p.ZRange()
		li.disabled = true
		li.layers = nil
		return errors.NonPlanarPathError(index, lo, hi)
	}

	switch {
	case len(li.layers) == 0:
		li.layers = append(li.layers, Layer{Z: p.firstZ()})
	case p.Type == Travel && p.hasZStep(li.tolerance) && li.hasExtrusion(paths, len(li.layers)-1):
		z := p.lastZ()
		prev := li.layers[len(li.layers)-1].Z
		li.layers = append(li.layers, Layer{Z: z, Height: z - prev})
	}
	last := &li.layers[len(li.layers)-1]
	last.Paths = append(last.Paths, index)
	return nil
}

func (li *LayerIndexer) hasExtrusion(paths []*Path, layer int) bool {
	for _, idx := range li.layers[layer].Paths {
		if paths[idx].Type == Extrusion {
			return true
		}
	}
	return false
}

// Snapshot captures the current shape.
func (li *LayerIndexer) Snapshot() IndexerSnapshot {
	s := IndexerSnapshot{layers: len(li.layers)}
	if s.layers > 0 {
		s.members = len(li.layers[s.layers-1].Paths)
	}
	return s
}

// Restore undoes every SortIn since s was taken. It does nothing once the
// indexer is disabled.
func (li *LayerIndexer) Restore(s IndexerSnapshot) {
	if li.disabled || s.layers > len(li.layers) {
		return
	}
	li.layers = li.layers[:s.layers]
	if s.layers > 0 {
		last := &li.layers[s.layers-1]
		last.Paths = last.Paths[:s.members]
	}
}

// Layers returns a copy of the layer list, or nil when layering is
// disabled. Later commits never alter a returned list.
func (li *LayerIndexer) Layers() []Layer {
	if li.disabled {
		return nil
	}
	out := make([]Layer, len(li.layers))
	for i, l := range li.layers {
		out[i] = Layer{Z: l.Z, Height: l.Height, Paths: slices.Clone(l.Paths)}
	}
	return out
}

// Len returns the number of layers, zero when disabled.
func (li *LayerIndexer) Len() int {
	return len(li.layers)
}

// members returns the path indices of layer i without copying.
func (li *LayerIndexer) members(i int) ([]int, bool) {
	if li.disabled || i < 0 || i >= len(li.layers) {
		return nil, false
	}
	return li.layers[i].Paths, true
}

// Disabled reports whether a non-planar extrusion turned layering off.
func (li *LayerIndexer) Disabled() bool {
	return li.disabled
}
