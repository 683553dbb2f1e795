package gcode

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLineMove(t *testing.T) {
	cmd, ok := ParseLine("G1 X10.5 Y-2 E0.3 F1800 N12 *71 ; perimeter")
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Opcode != "g1" || cmd.Code != CodeLinear || cmd.Kind != KindMove {
		t.Fatalf("unexpected opcode/code/kind: %q %v %v", cmd.Opcode, cmd.Code, cmd.Kind)
	}
	want := map[byte]float64{'x': 10.5, 'y': -2, 'e': 0.3, 'f': 1800}
	if len(cmd.Params) != len(want) {
		t.Fatalf("expected %d params, got %v", len(want), cmd.Params)
	}
	for k, v := range want {
		if got, _ := cmd.Param(k); got != v {
			t.Errorf("param %c: expected %v, got %v", k, v, got)
		}
	}
	if cmd.Has('n') {
		t.Error("line number letter should be dropped on a move")
	}
	if !cmd.HasComment || cmd.Comment != " perimeter" {
		t.Errorf("expected verbatim comment, got %q", cmd.Comment)
	}
}

func TestParseLineOpcodes(t *testing.T) {
	tests := []struct {
		line string
		code Code
		kind Kind
	}{
		{"G0 X1", CodeRapid, KindMove},
		{"g00 x1", CodeRapid, KindMove},
		{"G01 X1", CodeLinear, KindMove},
		{"G2 X1 I1", CodeArcCW, KindMove},
		{"G02 X1 I1", CodeArcCW, KindMove},
		{"G3 X1 J1", CodeArcCCW, KindMove},
		{"G03 X1 J1", CodeArcCCW, KindMove},
		{"G20", CodeInches, KindGeneric},
		{"G21", CodeMillimeters, KindGeneric},
		{"G28", CodeHome, KindGeneric},
		{"M104 S200", CodeOther, KindGeneric},
		{"T8", CodeOther, KindGeneric},
		{"T10", CodeOther, KindGeneric},
	}
	for _, tt := range tests {
		cmd, ok := ParseLine(tt.line)
		if !ok {
			t.Errorf("%q: expected a command", tt.line)
			continue
		}
		if cmd.Code != tt.code || cmd.Kind != tt.kind {
			t.Errorf("%q: got code %v kind %v, want %v %v", tt.line, cmd.Code, cmd.Kind, tt.code, tt.kind)
		}
	}
}

func TestParseToolSelect(t *testing.T) {
	for i := 0; i < 8; i++ {
		line := "T" + string(rune('0'+i))
		cmd, ok := ParseLine(line)
		if !ok || cmd.Kind != KindToolSelect || cmd.Code != CodeToolSelect {
			t.Fatalf("%s: expected tool select, got %+v", line, cmd)
		}
		if cmd.Tool != i {
			t.Errorf("%s: expected tool %d, got %d", line, i, cmd.Tool)
		}
	}
}

func TestParseGenericKeepsLetters(t *testing.T) {
	cmd, ok := ParseLine("M106 S255 P1 Qbad")
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.ParamOr('s', 0) != 255 || cmd.ParamOr('p', 0) != 1 {
		t.Errorf("expected S and P retained, got %v", cmd.Params)
	}
	if cmd.Has('q') {
		t.Error("unparsable Q token should be dropped")
	}
}

func TestParseDropsBadTokens(t *testing.T) {
	p := NewParser()
	cmds := p.ParseChunk("G1 X1..2 Y Zabc E-1 W5 X3\nG1 Xinf YNaN Z2")
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	first := cmds[0]
	if first.ParamOr('x', 0) != 3 {
		t.Errorf("expected last X to win, got %v", first.Params)
	}
	if first.ParamOr('e', 0) != -1 {
		t.Errorf("expected E=-1, got %v", first.Params)
	}
	if first.Has('y') || first.Has('z') || first.Has('w') {
		t.Errorf("expected Y, Z, W dropped, got %v", first.Params)
	}
	second := cmds[1]
	if second.Has('x') || second.Has('y') || second.ParamOr('z', 0) != 2 {
		t.Errorf("non-finite values should be dropped, got %v", second.Params)
	}
	// X1..2, Y, Zabc, W5, Xinf, YNaN
	if got := p.Stats().DroppedTokens; got != 6 {
		t.Errorf("expected 6 dropped tokens, got %d", got)
	}

	diags := p.Diagnostics()
	if len(diags) != 6 {
		t.Fatalf("expected 6 diagnostics, got %d", len(diags))
	}
	if diags[0].Code != "GCODE_PARSE" || diags[0].Line != 1 || !strings.Contains(diags[0].Message, `"X1..2"`) {
		t.Errorf("unexpected first diagnostic %v", diags[0])
	}
	if last := diags[5]; last.Line != 2 || last.Context["opcode"] != "g1" {
		t.Errorf("unexpected last diagnostic %v", last)
	}
}

func TestDiagnosticsAreBounded(t *testing.T) {
	p := NewParser()
	p.ParseChunk(strings.Repeat("G1 Q\n", MaxDiagnostics+10))
	if got := len(p.Diagnostics()); got != MaxDiagnostics {
		t.Errorf("expected %d diagnostics, got %d", MaxDiagnostics, got)
	}
	if got := p.Stats().DroppedTokens; got != MaxDiagnostics+10 {
		t.Errorf("expected every drop counted, got %d", got)
	}
}

func TestParseSkipsEmptyAndCommentLines(t *testing.T) {
	p := NewParser()
	cmds := p.ParseChunk("\n; only a comment\n   \nG28 ; home\n")
	if len(cmds) != 1 || cmds[0].Code != CodeHome {
		t.Fatalf("expected only G28, got %+v", cmds)
	}
	st := p.Stats()
	if st.Lines != 5 || st.Commands != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	// Comment-only lines live on in the raw-line log.
	if got := p.Lines()[1]; got != "; only a comment" {
		t.Errorf("expected comment line retained, got %q", got)
	}
	if _, ok := ParseLine(";LAYER:3"); ok {
		t.Error("comment-only line should yield no command")
	}
}

func TestCommentPreservesLeadingWhitespace(t *testing.T) {
	cmd, _ := ParseLine("G1 X1;   spaced ; nested")
	if cmd.Comment != "   spaced ; nested" {
		t.Errorf("expected comment after first ';' verbatim, got %q", cmd.Comment)
	}
}

func TestRoundTripSingleChunk(t *testing.T) {
	inputs := []string{
		"",
		"G28",
		"G28\n",
		"G1 X1 ; a\r\n\n\nG1 Y2   ;  b  \n",
		"; header\nT0\nG1 X1 E1\n\n",
	}
	for _, in := range inputs {
		p := NewParser()
		p.ParseChunk(in)
		if got := p.Source(); got != in {
			t.Errorf("round trip mismatch: %q -> %q", in, got)
		}
	}
}

func TestRoundTripMultiChunk(t *testing.T) {
	in := "G21\nG1 X1 Y1 E1 ; first\n\nG1 X2 Y2 E2\nT1\nG0 Z5\n"
	lines := strings.Split(in, "\n")

	for cut := 0; cut <= len(lines); cut++ {
		p := NewParser()
		p.ParseLines(lines[:cut])
		p.ParseLines(lines[cut:])
		if got := p.Source(); got != in {
			t.Fatalf("cut %d: round trip mismatch %q", cut, got)
		}
	}

	p := NewParser()
	p.ParseChunk("G21\nG1 X1 Y1 E1 ; first")
	p.ParseChunk("\nG1 X2 Y2 E2\nT1\nG0 Z5\n")
	if got := p.Source(); got != in {
		t.Errorf("string chunks cut at a line boundary: %q", got)
	}
}

func TestLineBufferRoundTrip(t *testing.T) {
	in := "G1 X1\nG1 X2 ; partial across chunks\nG1 X3"
	for size := 1; size <= len(in); size++ {
		var lb LineBuffer
		p := NewParser()
		for i := 0; i < len(in); i += size {
			end := min(i+size, len(in))
			p.ParseLines(lb.Feed(in[i:end]))
		}
		p.ParseLines(lb.Flush())
		if got := p.Source(); got != in {
			t.Fatalf("chunk size %d: got %q", size, got)
		}
		if p.Stats().Commands != 3 {
			t.Fatalf("chunk size %d: expected 3 commands, got %d", size, p.Stats().Commands)
		}
	}
}

func TestScanChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("G1 X1 Y2 E0.1\n")
	}
	in := sb.String()

	p := NewParser()
	batches := 0
	err := ScanChunks(strings.NewReader(in), 128, func(lines []string) error {
		if len(lines) > 128 {
			t.Fatalf("batch of %d lines exceeds limit", len(lines))
		}
		batches++
		p.ParseLines(lines)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Source() != in {
		t.Error("scan round trip mismatch")
	}
	if p.Stats().Commands != 1000 {
		t.Errorf("expected 1000 commands, got %d", p.Stats().Commands)
	}
	if batches != 8 {
		t.Errorf("expected 8 batches, got %d", batches)
	}
}

func TestScanChunksStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ScanChunks(strings.NewReader("a\nb\nc\n"), 1, func([]string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected first callback error to stop scanning, got %v after %d calls", err, calls)
	}
}
