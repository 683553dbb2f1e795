package toolpath

import (
	"math"
	"slices"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/gcode"
	"gcode-toolpath/pkg/log"
	"gcode-toolpath/pkg/metrics"
)

const (
	DefaultWidth  = 0.6
	DefaultHeight = 0.2
)

// Job is one toolpath being built. It owns the machine state, the path
// arena and every index derived from it. A Job is not safe for concurrent
// use.
//
// Paths are addressed by their position in the arena, which never changes.
// At the end of every Execute call the in-progress path is committed but
// left open; the next call un-indexes it, keeps extending it and commits it
// again, so splitting input at any command boundary yields the same paths.
type Job struct {
	name string

	state State
	paths []*Path

	current int // in-progress path, not indexed; -1 if none
	open    int // committed path the next Execute resumes; -1 if none

	extrusion []int
	travel    []int
	indexer   *LayerIndexer
	snapshot  IndexerSnapshot

	width     float64
	height    float64
	tolerance float64

	logger  *log.Logger
	metrics *metrics.ToolpathMetrics
}

// Option configures a Job.
type Option func(*Job)

// WithName labels the job in logs and metrics.
func WithName(name string) Option {
	return func(j *Job) { j.name = name }
}

// WithLayerTolerance sets the z step that may start a new layer.
func WithLayerTolerance(tol float64) Option {
	return func(j *Job) { j.tolerance = tol }
}

// WithWidth sets the extrusion width recorded on new paths.
func WithWidth(w float64) Option {
	return func(j *Job) { j.width = w }
}

// WithHeight sets the extrusion height recorded on new paths.
func WithHeight(h float64) Option {
	return func(j *Job) { j.height = h }
}

// WithLogger replaces the job logger.
func WithLogger(l *log.Logger) Option {
	return func(j *Job) { j.logger = l }
}

// WithMetrics records job activity into tm.
func WithMetrics(tm *metrics.ToolpathMetrics) Option {
	return func(j *Job) { j.metrics = tm }
}

// NewJob creates a job at the initial state: all axes and tool 0,
// millimeters, no motion yet.
func NewJob(opts ...Option) *Job {
	j := &Job{
		current:   -1,
		open:      -1,
		width:     DefaultWidth,
		height:    DefaultHeight,
		tolerance: DefaultLayerTolerance,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = log.GetLogger("toolpath")
	}
	if j.name != "" {
		j.logger = j.logger.WithPrefix(j.name)
	}
	j.indexer = NewLayerIndexer(j.tolerance)
	return j
}

// Execute runs cmds against job, creating a default job when job is nil.
// Failures are logged by the job; the returned job is always usable.
func Execute(job *Job, cmds []gcode.Command) *Job {
	if job == nil {
		job = NewJob()
	}
	_ = job.Execute(cmds)
	return job
}

// Execute replays cmds. It resumes the path left open by the previous call
// and leaves the last path open again. The only error is a RUNTIME
// ToolpathError from a panic while extending; the interrupted path then
// stays out of every index until the next Execute or Finish.
func (j *Job) Execute(cmds []gcode.Command) (err error) {
	done := j.metrics.ChunkTimer()
	defer done()

	j.resume()
	defer func() {
		if perr := errors.FromPanic(recover()); perr != nil {
			j.logger.WithError(perr).WithField("commands", len(cmds)).Error("execute aborted")
			err = perr
		}
	}()

	for i := range cmds {
		j.dispatch(&cmds[i])
	}
	if j.current >= 0 {
		j.commit(j.current)
		j.open, j.current = j.current, -1
	}
	return nil
}

// Finish closes the open path so later input starts a fresh one.
func (j *Job) Finish() {
	if j.current >= 0 {
		j.closeCurrent()
	}
	if j.open >= 0 {
		j.metrics.RecordPathCommitted(j.paths[j.open].Type.String())
		j.open = -1
	}
}

// resume turns the open path back into the in-progress one.
func (j *Job) resume() {
	if j.open < 0 {
		return
	}
	idx := j.open
	j.open = -1
	j.unindex(idx)
	j.current = idx
}

// commit files paths[idx] into the type list and the layer index.
func (j *Job) commit(idx int) {
	p := j.paths[idx]
	if p.Type == Extrusion {
		j.extrusion = append(j.extrusion, idx)
	} else {
		j.travel = append(j.travel, idx)
	}

	j.snapshot = j.indexer.Snapshot()
	if err := j.indexer.SortIn(j.paths, idx); err != nil {
		j.logger.WithError(err).Warn("layering disabled")
		j.metrics.RecordNonPlanar()
	}
	j.metrics.SetLayers(j.name, j.indexer.Len())
}

// unindex reverses commit(idx). idx must be the most recently committed
// path.
func (j *Job) unindex(idx int) {
	list := &j.travel
	if j.paths[idx].Type == Extrusion {
		list = &j.extrusion
	}
	if k := slices.Index(*list, idx); k >= 0 {
		*list = slices.Delete(*list, k, k+1)
	}
	j.indexer.Restore(j.snapshot)
}

// closeCurrent commits the in-progress path for good.
func (j *Job) closeCurrent() {
	if j.current < 0 {
		return
	}
	j.commit(j.current)
	j.metrics.RecordPathCommitted(j.paths[j.current].Type.String())
	j.current = -1
}

// Name returns the job label.
func (j *Job) Name() string { return j.name }

// State returns a copy of the machine state.
func (j *Job) State() State { return j.state }

// Paths returns every path in creation order.
func (j *Job) Paths() []*Path { return j.paths }

// Path returns path i.
func (j *Job) Path(i int) *Path { return j.paths[i] }

// ExtrusionPaths returns the indices of committed extrusion paths.
func (j *Job) ExtrusionPaths() []int { return j.extrusion }

// TravelPaths returns the indices of committed travel paths.
func (j *Job) TravelPaths() []int { return j.travel }

// Layers returns the layer list, or nil once a non-planar extrusion has
// disabled layering.
func (j *Job) Layers() []Layer { return j.indexer.Layers() }

// Layered reports whether layering is still enabled.
func (j *Job) Layered() bool { return !j.indexer.Disabled() }

// LayerPaths returns the paths in layer i, or nil if there is no such layer.
func (j *Job) LayerPaths(i int) []*Path {
	members, ok := j.indexer.members(i)
	if !ok {
		return nil
	}
	out := make([]*Path, len(members))
	for k, idx := range members {
		out[k] = j.paths[idx]
	}
	return out
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

// Bounds returns the box around every vertex. It is zero for an empty job.
func (j *Job) Bounds() Bounds {
	lo := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	found := false
	for _, p := range j.paths {
		for i := 0; i+2 < len(p.Vertices); i += 3 {
			found = true
			for a := 0; a < 3; a++ {
				lo[a] = math.Min(lo[a], p.Vertices[i+a])
				hi[a] = math.Max(hi[a], p.Vertices[i+a])
			}
		}
	}
	if !found {
		return Bounds{}
	}
	return Bounds{Min: lo, Max: hi}
}

// Summary is a compact report of a job.
type Summary struct {
	Name            string  `json:"name,omitempty"`
	Paths           int     `json:"paths"`
	Extrusions      int     `json:"extrusions"`
	Travels         int     `json:"travels"`
	Layers          int     `json:"layers"`
	Layered         bool    `json:"layered"`
	Tools           []int   `json:"tools"`
	ExtrusionLength float64 `json:"extrusion_length"`
	Units           string  `json:"units"`
	Bounds          Bounds  `json:"bounds"`
}

// Summary reports counts, bounds and extrusion length.
func (j *Job) Summary() Summary {
	s := Summary{
		Name:       j.name,
		Paths:      len(j.paths),
		Extrusions: len(j.extrusion),
		Travels:    len(j.travel),
		Layers:     j.indexer.Len(),
		Layered:    j.Layered(),
		Units:      j.state.Units.String(),
		Bounds:     j.Bounds(),
		Tools:      []int{},
	}
	seen := map[int]bool{}
	for _, p := range j.paths {
		if !seen[p.Tool] {
			seen[p.Tool] = true
			s.Tools = append(s.Tools, p.Tool)
		}
		if p.Type == Extrusion {
			s.ExtrusionLength += p.Length()
		}
	}
	sort.Ints(s.Tools)
	return s
}
