package toolpath

import (
	"github.com/go-gl/mathgl/mgl64"

	"gcode-toolpath/pkg/arcs"
	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/gcode"
)

type handler func(j *Job, cmd *gcode.Command)

// handlers is indexed by gcode.Code. CodeOther is deliberately a no-op so
// unknown opcodes are ignored.
var handlers = [gcode.NumCodes]handler{
	gcode.CodeOther:       func(*Job, *gcode.Command) {},
	gcode.CodeRapid:       (*Job).cmdLinear,
	gcode.CodeLinear:      (*Job).cmdLinear,
	gcode.CodeArcCW:       (*Job).cmdArc,
	gcode.CodeArcCCW:      (*Job).cmdArc,
	gcode.CodeInches:      (*Job).cmdUnits,
	gcode.CodeMillimeters: (*Job).cmdUnits,
	gcode.CodeHome:        (*Job).cmdHome,
	gcode.CodeToolSelect:  (*Job).cmdTool,
}

func (j *Job) dispatch(cmd *gcode.Command) {
	if cmd.Code < 0 || cmd.Code >= gcode.NumCodes {
		return
	}
	handlers[cmd.Code](j, cmd)
}

// travelTypeOf: extrusion iff e is present and positive.
func travelTypeOf(cmd *gcode.Command) TravelType {
	if e, ok := cmd.Param('e'); ok && e > 0 {
		return Extrusion
	}
	return Travel
}

// target overlays the axes present in cmd onto the current position.
func (j *Job) target(cmd *gcode.Command) mgl64.Vec3 {
	next := j.state.Position()
	for axis, letter := range [3]byte{'x', 'y', 'z'} {
		if v, ok := cmd.Param(letter); ok {
			next[axis] = v
		}
	}
	return next
}

// moveTo updates the state after a completed move.
func (j *Job) moveTo(p mgl64.Vec3, cmd *gcode.Command) {
	j.state.X, j.state.Y, j.state.Z = p[0], p[1], p[2]
	if e, ok := cmd.Param('e'); ok {
		j.state.E = e
	}
	j.state.HasMoved = true
}

// cmdLinear handles G0/G1.
func (j *Job) cmdLinear(cmd *gcode.Command) {
	next := j.target(cmd)
	j.appendPoint(next, travelTypeOf(cmd))
	j.moveTo(next, cmd)
}

// cmdArc handles G2/G3. The radius form wins when R is present.
func (j *Job) cmdArc(cmd *gcode.Command) {
	m := arcs.Move{
		Start:     j.state.Position(),
		End:       j.target(cmd),
		Clockwise: cmd.Code == gcode.CodeArcCW,
		Units:     j.state.Units,
	}
	if r, ok := cmd.Param('r'); ok {
		m.R, m.UseRadius = r, true
		j.state.R = r
	} else {
		m.I, m.J = cmd.ParamOr('i', 0), cmd.ParamOr('j', 0)
		j.state.I, j.state.J = m.I, m.J
	}

	pts := arcs.Interpolate(m)
	t := travelTypeOf(cmd)
	for _, p := range pts[1:] {
		j.appendPoint(p, t)
	}
	j.metrics.RecordArcSegments(len(pts) - 1)
	j.moveTo(m.End, cmd)
}

// cmdUnits handles G20/G21. Units are fixed once motion began.
func (j *Job) cmdUnits(cmd *gcode.Command) {
	units := gcode.Millimeters
	if cmd.Code == gcode.CodeInches {
		units = gcode.Inches
	}
	if units == j.state.Units {
		return
	}
	if j.state.HasMoved {
		err := errors.UnitChangeError(cmd.Opcode)
		j.logger.WithError(err).WithField("units", j.state.Units.String()).Warn("unit change rejected")
		j.metrics.RecordUnitChangeRejected()
		return
	}
	j.state.Units = units
}

// cmdHome handles G28.
func (j *Job) cmdHome(*gcode.Command) {
	j.state.X, j.state.Y, j.state.Z = 0, 0, 0
}

// cmdTool handles T0-T7.
func (j *Job) cmdTool(cmd *gcode.Command) {
	j.state.Tool = cmd.Tool
}

// appendPoint adds p to the in-progress path, first committing it and
// starting a new one when there is none or its type differs. A new path is
// seeded with the pre-move position so consecutive paths share an endpoint.
func (j *Job) appendPoint(p mgl64.Vec3, t TravelType) {
	if j.current < 0 || j.paths[j.current].Type != t {
		j.closeCurrent()
		j.startPath(t)
	}
	j.paths[j.current].appendPoint(p)
}

func (j *Job) startPath(t TravelType) {
	p := &Path{
		Type:   t,
		Width:  j.width,
		Height: j.height,
		Tool:   j.state.Tool,
		Start:  j.state,
	}
	p.appendPoint(j.state.Position())
	j.paths = append(j.paths, p)
	j.current = len(j.paths) - 1
}
