package shell

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/antibyte/picobasic/pkg/program"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/storage"
	"github.com/antibyte/picobasic/pkg/tinybasic"
)

func newTestShell(t *testing.T, opts runner.Options) (*Shell, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	fsys, err := storage.NewHostFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	resolver := storage.NewResolver(fsys, storage.DefaultOptions())
	supervisor := runner.NewSupervisor(tinybasic.New(out), nil, nil, opts)
	return New(program.NewTable(0), resolver, supervisor, out), out
}

// exec runs each input line and returns what the shell printed.
func exec(s *Shell, out *bytes.Buffer, lines ...string) string {
	out.Reset()
	for _, line := range lines {
		s.Execute(line)
	}
	return out.String()
}

func TestEditAndList(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())

	exec(s, out, "20 print 2", "10 print 1", "30 print 3", "20 PRINT 22")
	tests := []struct {
		args string
		want string
	}{
		{"", "10 print 1\n20 PRINT 22\n30 print 3\n"},
		{"20-20", "20 PRINT 22\n"},
		{"25-25", ""},
		{"20", "20 PRINT 22\n30 print 3\n"},
		{"-20", "10 print 1\n20 PRINT 22\n"},
		{"15-30", "20 PRINT 22\n30 print 3\n"},
	}
	for _, tt := range tests {
		if got := exec(s, out, "list "+tt.args); got != tt.want {
			t.Errorf("LIST %s = %q, want %q", tt.args, got, tt.want)
		}
	}

	exec(s, out, "20")
	if got := exec(s, out, "LIST"); got != "10 print 1\n30 print 3\n" {
		t.Errorf("a bare number should delete the line, got %q", got)
	}
}

func TestListEmptyAndNew(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())
	if got := exec(s, out, "LIST"); got != "(empty)\n" {
		t.Errorf("got %q", got)
	}
	exec(s, out, "10 rem")
	if got := exec(s, out, "NEW", "LIST"); got != "READY.\n(empty)\n" {
		t.Errorf("got %q", got)
	}
}

func TestLineNumberValidation(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())
	for _, in := range []string{"0 print", "65536 print", "99999999999999999999 x"} {
		if got := exec(s, out, in); got != "ERROR: line number 1..65535\n" {
			t.Errorf("%q: got %q", in, got)
		}
	}
	if s.Table().Len() != 0 {
		t.Error("invalid lines must not be stored")
	}
}

func TestProgramFull(t *testing.T) {
	out := &bytes.Buffer{}
	s := New(program.NewTable(1), storage.NewResolver(nil, storage.DefaultOptions()), nil, out)
	exec(s, out, "10 rem")
	if got := exec(s, out, "20 rem"); got != "ERROR: program full\n" {
		t.Errorf("got %q", got)
	}
}

func TestRun(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())

	if got := exec(s, out, "RUN"); got != "(no program)\n" {
		t.Errorf("got %q", got)
	}

	exec(s, out, `10 PRINT "Hi"`, "20 a = 6 * 7", "30 print a")
	got := exec(s, out, "run")
	if got != "Hi\n42\n\nREADY.\n" {
		t.Errorf("unexpected run output %q", got)
	}
	if text, _ := s.Table().Get(10); text != `PRINT "Hi"` {
		t.Errorf("a run must not modify the program, got %q", text)
	}
}

func TestRunStepLimit(t *testing.T) {
	s, out := newTestShell(t, runner.Options{MaxSteps: 50, YieldInterval: 16})
	exec(s, out, "10 goto 10")
	got := exec(s, out, "RUN")
	if !strings.Contains(got, "** Too many steps, aborting **") || !strings.HasSuffix(got, "READY.\n") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestRunOutOfMemory(t *testing.T) {
	s, out := newTestShell(t, runner.Options{SourceLimit: 8})
	exec(s, out, "10 print 1")
	if got := exec(s, out, "RUN"); got != "ERROR: out of memory\n" {
		t.Errorf("got %q", got)
	}
	if s.Table().Len() != 1 {
		t.Error("table must survive an out of memory run")
	}
}

func TestSaveLoadTypeDir(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())
	exec(s, out, "10 print 1", "20 print 2")

	if got := exec(s, out, "SAVE demo.bas"); got != "Saved to /ubasic/demo.bas\n" {
		t.Fatalf("got %q", got)
	}

	exec(s, out, "NEW")
	got := exec(s, out, "LOAD demo.bas")
	if got != "Loaded 2 line(s) from /ubasic/demo.bas\nREADY.\n" {
		t.Errorf("got %q", got)
	}
	if s.Table().Len() != 2 {
		t.Errorf("expected 2 lines after load, got %d", s.Table().Len())
	}

	got = exec(s, out, "TYPE demo.bas")
	want := "----- /ubasic/demo.bas -----\n10 print 1\n20 print 2\n\n---------------\n"
	if got != want {
		t.Errorf("TYPE = %q, want %q", got, want)
	}

	got = exec(s, out, "DIR")
	if !strings.HasPrefix(got, "Directory of /ubasic\n") || !strings.Contains(got, "demo.bas") || !strings.Contains(got, "22 B") {
		t.Errorf("unexpected DIR output %q", got)
	}
}

func TestFileCommandErrors(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())
	exec(s, out, "10 rem keep")

	tests := map[string]string{
		"SAVE":         "Usage: SAVE <name>\n",
		"LOAD":         "Usage: LOAD <name>\n",
		"TYPE":         "Usage: TYPE <name>\n",
		"LOAD missing": "ERROR: LOAD failed (file not found)\n",
		"TYPE missing": "ERROR: not found\n",
		"SAVE nodir/p": "ERROR: SAVE failed (cannot create file)\n",
	}
	for in, want := range tests {
		if got := exec(s, out, in); got != want {
			t.Errorf("%q: got %q, want %q", in, got, want)
		}
	}
	if s.Table().Len() != 1 {
		t.Error("failed file commands must leave the program alone")
	}
}

func TestUnknownCommandAndHelp(t *testing.T) {
	s, out := newTestShell(t, runner.DefaultOptions())
	if got := exec(s, out, "frobnicate now"); got != "Unknown: FROBNICATE  (type HELP)\n" {
		t.Errorf("got %q", got)
	}
	help := exec(s, out, "?")
	if !strings.HasPrefix(help, "Commands:\n") || !strings.Contains(help, "save to /ubasic/<name>") {
		t.Errorf("unexpected help %q", help)
	}
	if exec(s, out, "   ") != "" {
		t.Error("blank input should print nothing")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in        string
		low, high int
	}{
		{"", program.Unbounded, program.Unbounded},
		{"10", 10, program.Unbounded},
		{"10-20", 10, 20},
		{"-20", program.Unbounded, 20},
		{"10-", 10, program.Unbounded},
		{" 10 - 20 ", 10, 20},
	}
	for _, tt := range tests {
		low, high := parseRange(tt.in)
		if low != tt.low || high != tt.high {
			t.Errorf("parseRange(%q) = %d,%d want %d,%d", tt.in, low, high, tt.low, tt.high)
		}
	}
}

func TestTruncateLineKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"10 print 1", 0, "10 print 1"},
		{"10 print 1", 20, "10 print 1"},
		{"10 print 1", 4, "10 p"},
		{"10 \"ä\"", 5, "10 \""},
		{"10 \"ä\"", 6, "10 \"ä"},
		{"10 €", 5, "10 "},
	}
	for _, tt := range tests {
		got := truncateLine(tt.in, tt.max)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestLongLineStoredAsValidUTF8(t *testing.T) {
	out := &bytes.Buffer{}
	s := New(program.NewTable(0), storage.NewResolver(nil, storage.DefaultOptions()), nil, out)
	s.maxLineChars = 12
	exec(s, out, `10 print "äöü"`)
	text, ok := s.Table().Get(10)
	if !ok || !utf8.ValidString(text) || text != `print "ä` {
		t.Errorf("line 10 = %q, %v", text, ok)
	}
}
