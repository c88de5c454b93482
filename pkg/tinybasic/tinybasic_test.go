package tinybasic

import (
	"bytes"
	"errors"
	"testing"
)

// runProgram steps src to completion, failing after limit steps.
func runProgram(t *testing.T, src string, limit int) (*TinyBASIC, string) {
	t.Helper()
	var out bytes.Buffer
	b := New(&out)
	if err := b.Init([]byte(src)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for i := 0; !b.Finished(); i++ {
		if i >= limit {
			t.Fatalf("program did not finish within %d steps", limit)
		}
		b.Step()
	}
	b.Release()
	return b, out.String()
}

func TestEvalExpression(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected int
	}{
		{"simple addition", "2 + 3", 5},
		{"precedence", "2 + 3 * 4", 14},
		{"parentheses", "2 * (3 + 4)", 14},
		{"division truncates", "7 / 2", 3},
		{"modulo", "7 % 3", 1},
		{"negative number", "-5 + 2", -3},
		{"bitwise and", "6 & 3", 2},
		{"bitwise or", "4 | 1", 5},
		{"relation true", "3 < 4", 1},
		{"relation false", "3 >= 4", 0},
		{"not equal", "3 <> 4", 1},
		{"variable", "a * 2", 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := [26]int{10}
			p := newParser(tt.expr, 10, &vars)
			got, err := p.relation()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("%s = %d, want %d", tt.expr, got, tt.expected)
			}
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		expr string
		want error
	}{
		{"1 / 0", ErrDivisionByZero},
		{"(1 + 2", ErrMissingParenthesis},
		{"1 + ", ErrSyntaxError},
	}
	for _, tt := range tests {
		var vars [26]int
		_, err := newParser(tt.expr, 10, &vars).relation()
		if !errors.Is(err, tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.expr, tt.want, err)
		}
	}
}

func TestPrintAndLoop(t *testing.T) {
	src := "10 for i = 1 to 3\n20 print \"n=\"; i\n30 next i\n40 end\n"
	_, out := runProgram(t, src, 100)
	if out != "n=1\nn=2\nn=3\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPrintSeparators(t *testing.T) {
	_, out := runProgram(t, "10 print \"a\", 1;\n20 print 2\n", 10)
	if out != "a 12\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestGosubAndIf(t *testing.T) {
	src := `10 a = 0
20 gosub 100
30 if a = 5 then print "five" else print "other"
40 if a > 10 then 60
50 end
60 print "unreachable"
100 let a = a + 5
110 return
`
	b, out := runProgram(t, src, 100)
	if out != "five\n" {
		t.Errorf("unexpected output %q", out)
	}
	if b.Variable('a') != 5 {
		t.Errorf("a = %d, want 5", b.Variable('a'))
	}
}

func TestStepCountsStatements(t *testing.T) {
	var out bytes.Buffer
	b := New(&out)
	b.Init([]byte("10 a = 1\n20 b = 2\n30 end\n"))

	steps := 0
	for !b.Finished() {
		b.Step()
		steps++
	}
	if steps != 3 {
		t.Errorf("expected one step per statement, got %d", steps)
	}
}

func TestRunningOffTheEndFinishes(t *testing.T) {
	b, _ := runProgram(t, "10 a = 1\n", 5)
	if b.Err() != nil {
		t.Errorf("unexpected error %v", b.Err())
	}
}

func TestRuntimeErrorsFinishTheRun(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"missing line", "10 goto 99\n", ErrLineNotFound},
		{"return without gosub", "10 return\n", ErrReturnWithoutGosub},
		{"next without for", "10 next i\n", ErrNextWithoutFor},
		{"division", "10 a = 1 / 0\n", ErrDivisionByZero},
		{"unknown statement", "10 plot 1, 2\n", ErrUnknownStatement},
		{"gosub depth", "10 gosub 10\n", ErrGosubDepthExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, out := runProgram(t, tt.src, 100)
			if !errors.Is(b.Err(), tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, b.Err())
			}
			if out == "" {
				t.Error("the error should be reported on the output")
			}
		})
	}
}

func TestInfiniteLoopNeverFinishes(t *testing.T) {
	var out bytes.Buffer
	b := New(&out)
	b.Init([]byte("10 goto 10\n"))
	for i := 0; i < 1000; i++ {
		b.Step()
	}
	if b.Finished() {
		t.Error("goto loop should keep running")
	}
}

func TestInitRejectsUnnumberedLines(t *testing.T) {
	b := New(&bytes.Buffer{})
	if err := b.Init([]byte("print 1\n")); !errors.Is(err, ErrMissingLineNumber) {
		t.Errorf("expected ErrMissingLineNumber, got %v", err)
	}
	if !b.Finished() {
		t.Error("a rejected program counts as finished")
	}
}

func TestSplitElse(t *testing.T) {
	then, els := splitElse(`print "else" else print 2`)
	if then != `print "else" ` || els != " print 2" {
		t.Errorf("got %q / %q", then, els)
	}
	then, els = splitElse("elsewhere = 1")
	if then != "elsewhere = 1" || els != "" {
		t.Errorf("keyword inside identifier should not split, got %q / %q", then, els)
	}
}
