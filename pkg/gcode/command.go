// Package gcode tokenizes G-code text into typed commands.
//
// Parsing is permissive: vendor-specific or malformed tokens are dropped
// rather than reported, and every consumed raw line is retained so the
// original text can be rebuilt byte for byte.
package gcode

// Kind is the closed set of command shapes the parser produces.
type Kind int

const (
	// KindGeneric retains every parsed letter.
	KindGeneric Kind = iota
	// KindMove carries only motion letters (x y z e f r i j).
	KindMove
	// KindToolSelect carries a tool index 0-7.
	KindToolSelect
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindToolSelect:
		return "tool"
	default:
		return "generic"
	}
}

// Code identifies the opcodes the interpreter acts on. Everything else is
// CodeOther.
type Code int

const (
	CodeOther Code = iota
	CodeRapid
	CodeLinear
	CodeArcCW
	CodeArcCCW
	CodeInches
	CodeMillimeters
	CodeHome
	CodeToolSelect

	// NumCodes is the size of a dispatch table indexed by Code.
	NumCodes
)

var codeNames = [NumCodes]string{
	CodeOther:       "other",
	CodeRapid:       "g0",
	CodeLinear:      "g1",
	CodeArcCW:       "g2",
	CodeArcCCW:      "g3",
	CodeInches:      "g20",
	CodeMillimeters: "g21",
	CodeHome:        "g28",
	CodeToolSelect:  "t",
}

func (c Code) String() string {
	if c < 0 || c >= NumCodes {
		return "invalid"
	}
	return codeNames[c]
}

// opcodes maps lowercased opcode tokens to their code.
var opcodes = map[string]Code{
	"g0":  CodeRapid,
	"g00": CodeRapid,
	"g1":  CodeLinear,
	"g01": CodeLinear,
	"g2":  CodeArcCW,
	"g02": CodeArcCW,
	"g3":  CodeArcCCW,
	"g03": CodeArcCCW,
	"g20": CodeInches,
	"g21": CodeMillimeters,
	"g28": CodeHome,
}

// motionLetters are the parameters a move command keeps.
var motionLetters = [256]bool{
	'x': true, 'y': true, 'z': true, 'e': true,
	'f': true, 'r': true, 'i': true, 'j': true,
}

// IsMotionLetter reports whether letter is accepted on g0-g3.
func IsMotionLetter(letter byte) bool {
	return motionLetters[letter]
}

// Command is one parsed line. It is not modified after the parser returns it.
type Command struct {
	// Raw is the source line exactly as consumed.
	Raw string
	// Opcode is the lowercased first token, e.g. "g1" or "m104".
	Opcode string
	Code   Code
	Kind   Kind
	// Params holds letter -> value for the tokens that survived parsing.
	Params map[byte]float64
	// Comment is the text after the first ';', leading whitespace included.
	Comment    string
	HasComment bool
	// Tool is the selected tool for KindToolSelect commands.
	Tool int
}

// Param returns the value for a lowercase parameter letter.
func (c Command) Param(letter byte) (float64, bool) {
	v, ok := c.Params[letter]
	return v, ok
}

// Has reports whether the parameter letter is present.
func (c Command) Has(letter byte) bool {
	_, ok := c.Params[letter]
	return ok
}

// ParamOr returns the parameter value or def when absent.
func (c Command) ParamOr(letter byte, def float64) float64 {
	if v, ok := c.Params[letter]; ok {
		return v
	}
	return def
}

// IsMotion reports whether the command is g0-g3.
func (c Command) IsMotion() bool {
	return c.Kind == KindMove
}

// Units is the unit system selected by g20/g21.
type Units int

const (
	Millimeters Units = iota
	Inches
)

func (u Units) String() string {
	if u == Inches {
		return "in"
	}
	return "mm"
}
