package toolpath

import (
	"gcode-toolpath/pkg/gcode"
)

// Stream feeds raw text into a Job through its own parser, holding back a
// trailing partial line between writes.
type Stream struct {
	job     *Job
	parser  *gcode.Parser
	pending gcode.LineBuffer
	dropped int
	diags   int
}

// NewStream wraps job, creating a default one when job is nil.
func NewStream(job *Job) *Stream {
	if job == nil {
		job = NewJob()
	}
	return &Stream{job: job, parser: gcode.NewParser()}
}

// Job returns the job being fed.
func (s *Stream) Job() *Job { return s.job }

// Parser returns the parser holding the raw line log.
func (s *Stream) Parser() *gcode.Parser { return s.parser }

// Write consumes an arbitrary chunk of text. Complete lines are parsed and
// executed; an unterminated tail waits for the next Write or Close.
func (s *Stream) Write(text string) error {
	lines := s.pending.Feed(text)
	if len(lines) == 0 {
		return nil
	}
	return s.WriteLines(lines)
}

// WriteLines parses and executes lines the caller has already split.
func (s *Stream) WriteLines(lines []string) error {
	cmds := s.parser.ParseLines(lines)
	s.record(cmds)
	return s.job.Execute(cmds)
}

// Pending reports how many bytes of an unterminated line are held back.
func (s *Stream) Pending() int { return s.pending.Pending() }

// Close flushes the held-back line and finishes the job.
func (s *Stream) Close() error {
	err := s.WriteLines(s.pending.Flush())
	s.job.Finish()
	return err
}

func (s *Stream) record(cmds []gcode.Command) {
	diags := s.parser.Diagnostics()
	for _, d := range diags[s.diags:] {
		s.job.logger.WithError(d).Debug("token dropped")
	}
	s.diags = len(diags)

	tm := s.job.metrics
	if tm == nil {
		return
	}
	counts := map[gcode.Kind]int{}
	for i := range cmds {
		counts[cmds[i].Kind]++
	}
	for k, n := range counts {
		tm.RecordCommands(k.String(), n)
	}
	st := s.parser.Stats()
	tm.RecordDroppedTokens(st.DroppedTokens - s.dropped)
	s.dropped = st.DroppedTokens
}
