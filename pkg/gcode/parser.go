package gcode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gcode-toolpath/pkg/errors"
)

// MaxDiagnostics bounds the dropped-token reports a parser keeps.
const MaxDiagnostics = 256

// Stats counts what a parser has consumed so far.
type Stats struct {
	Lines         int
	Commands      int
	DroppedTokens int
}

// Parser turns chunks of G-code text into commands and keeps the raw line
// log. A Parser belongs to a single toolpath; it is not safe for concurrent
// use.
type Parser struct {
	lines []string
	stats Stats
	diags []*errors.ToolpathError
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseChunk parses newline-delimited text. To keep Source() byte-exact
// across several calls, chunks must be cut at line boundaries with the
// separating newline removed; callers reading a byte stream should hold
// back the trailing partial line (see LineBuffer) and use ParseLines.
func (p *Parser) ParseChunk(text string) []Command {
	return p.ParseLines(strings.Split(text, "\n"))
}

// ParseLines parses lines that the caller has already split.
func (p *Parser) ParseLines(lines []string) []Command {
	cmds := make([]Command, 0, len(lines))
	for _, line := range lines {
		p.lines = append(p.lines, line)
		p.stats.Lines++
		cmd, dropped, ok := parseLine(line)
		p.stats.DroppedTokens += len(dropped)
		for _, tok := range dropped {
			p.diagnose(cmd.Opcode, tok)
		}
		if !ok {
			continue
		}
		p.stats.Commands++
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (p *Parser) diagnose(opcode, tok string) {
	if len(p.diags) >= MaxDiagnostics {
		return
	}
	p.diags = append(p.diags,
		errors.New(errors.ErrGCodeParse, fmt.Sprintf("dropped token %q", tok)).
			SetLine(p.stats.Lines).
			SetContext("opcode", opcode))
}

// Diagnostics returns a GCODE_PARSE error for each dropped token, oldest
// first, up to MaxDiagnostics. Line numbers are 1-based across all chunks.
func (p *Parser) Diagnostics() []*errors.ToolpathError {
	return p.diags
}

// Lines returns every raw line consumed so far.
func (p *Parser) Lines() []string {
	return p.lines
}

// Source rebuilds the consumed text.
func (p *Parser) Source() string {
	return strings.Join(p.lines, "\n")
}

// Stats returns the running counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseLine parses a single line without touching any parser state. ok is
// false for lines with no instruction (blank or comment-only).
func ParseLine(line string) (Command, bool) {
	cmd, _, ok := parseLine(line)
	return cmd, ok
}

func parseLine(line string) (cmd Command, dropped []string, ok bool) {
	instruction := line
	var comment string
	hasComment := false
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		instruction = line[:idx]
		comment = line[idx+1:]
		hasComment = true
	}

	fields := strings.Fields(instruction)
	if len(fields) == 0 {
		return Command{}, nil, false
	}

	opcode := strings.ToLower(fields[0])
	cmd = Command{
		Raw:        line,
		Opcode:     opcode,
		Code:       CodeOther,
		Kind:       KindGeneric,
		Comment:    comment,
		HasComment: hasComment,
	}
	if code, known := opcodes[opcode]; known {
		cmd.Code = code
		switch code {
		case CodeRapid, CodeLinear, CodeArcCW, CodeArcCCW:
			cmd.Kind = KindMove
		}
	} else if tool, isTool := toolIndex(opcode); isTool {
		cmd.Code = CodeToolSelect
		cmd.Kind = KindToolSelect
		cmd.Tool = tool
	}

	args := fields[1:]
	if len(args) > 0 {
		cmd.Params = make(map[byte]float64, len(args))
	}
	for _, tok := range args {
		letter, value, valid := parseToken(tok)
		if !valid || (cmd.Kind == KindMove && !motionLetters[letter]) {
			dropped = append(dropped, tok)
			continue
		}
		cmd.Params[letter] = value
	}
	return cmd, dropped, true
}

// parseToken splits "X12.5" into ('x', 12.5).
func parseToken(tok string) (byte, float64, bool) {
	if len(tok) < 2 {
		return 0, 0, false
	}
	letter := tok[0]
	if 'A' <= letter && letter <= 'Z' {
		letter += 'a' - 'A'
	}
	if letter < 'a' || letter > 'z' {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(tok[1:], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0, false
	}
	return letter, v, true
}

// toolIndex recognizes "t0".."t7".
func toolIndex(opcode string) (int, bool) {
	if len(opcode) != 2 || opcode[0] != 't' {
		return 0, false
	}
	d := opcode[1]
	if d < '0' || d > '7' {
		return 0, false
	}
	return int(d - '0'), true
}
