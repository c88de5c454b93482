// Package tinybasic implements a small integer BASIC engine that executes one
// statement per Step, so a caller can meter and interrupt a run.
package tinybasic

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antibyte/picobasic/pkg/logger"
)

const (
	maxGosubDepth = 32
	maxForDepth   = 16
)

type programLine struct {
	number int
	stmt   string
}

type forFrame struct {
	slot  int
	limit int
	step  int
	body  int // index of the first line of the loop body
}

// TinyBASIC runs a numbered program held in canonical lowercase form.
// Statements: print, let, if/then/else, goto, gosub, return, for/to/step,
// next, end, rem. Variables are the integers a to z. Runtime errors are
// written to the output and end the run.
type TinyBASIC struct {
	out        *bufio.Writer
	lines      []programLine
	index      map[int]int
	pc         int
	vars       [26]int
	gosubStack []int
	forLoops   []forFrame
	finished   bool
	err        error
}

// New returns an engine writing program output to out.
func New(out io.Writer) *TinyBASIC {
	return &TinyBASIC{out: bufio.NewWriter(out)}
}

// Init loads source, one "<number> <statement>" per line, and resets all
// state. Lines must be ascending.
func (b *TinyBASIC) Init(source []byte) error {
	b.reset()

	for _, raw := range bytes.Split(source, []byte{'\n'}) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		digits := 0
		for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			b.finished = true
			b.err = NewBASICError(ErrCategorySyntax, ErrMissingLineNumber, 0).WithDetail(line)
			return b.err
		}
		number, err := strconv.Atoi(line[:digits])
		if err != nil {
			b.finished = true
			b.err = syntaxError(0, line[:digits])
			return b.err
		}
		if len(b.lines) > 0 && number <= b.lines[len(b.lines)-1].number {
			b.finished = true
			b.err = syntaxError(number, "line out of order")
			return b.err
		}
		b.index[number] = len(b.lines)
		b.lines = append(b.lines, programLine{number: number, stmt: strings.TrimSpace(line[digits:])})
	}

	if len(b.lines) == 0 {
		b.finished = true
	}
	logger.Debug(logger.AreaRunner, "engine loaded %d lines", len(b.lines))
	return nil
}

func (b *TinyBASIC) reset() {
	b.lines = b.lines[:0]
	b.index = make(map[int]int)
	b.pc = 0
	b.vars = [26]int{}
	b.gosubStack = b.gosubStack[:0]
	b.forLoops = b.forLoops[:0]
	b.finished = false
	b.err = nil
}

// Finished reports whether the program has ended.
func (b *TinyBASIC) Finished() bool { return b.finished }

// Err returns the error that ended the run, if any.
func (b *TinyBASIC) Err() error { return b.err }

// Variable returns the value of variable name (a to z).
func (b *TinyBASIC) Variable(name byte) int {
	if name < 'a' || name > 'z' {
		return 0
	}
	return b.vars[name-'a']
}

// Release drops the loaded program and flushes pending output.
func (b *TinyBASIC) Release() {
	b.out.Flush()
	b.lines = nil
	b.index = nil
}

// Step executes the statement at the program counter.
func (b *TinyBASIC) Step() {
	if b.finished {
		return
	}
	if b.pc >= len(b.lines) {
		b.finish(nil)
		return
	}

	line := b.lines[b.pc]
	b.pc++
	if err := b.execute(line.number, line.stmt); err != nil {
		b.finish(err)
	}
}

func (b *TinyBASIC) finish(err error) {
	b.finished = true
	if err != nil {
		b.err = err
		fmt.Fprintf(b.out, "\n%s\n", err)
		logger.Debug(logger.AreaRunner, "engine stopped: %v", err)
	}
	b.out.Flush()
}

func (b *TinyBASIC) execute(number int, stmt string) error {
	p := newParser(stmt, number, &b.vars)
	return b.statement(p)
}

func (b *TinyBASIC) statement(p *parser) error {
	if p.cur.Type != TOKEN_IDENTIFIER {
		return syntaxError(p.line, "unexpected "+describe(p.cur))
	}

	keyword := p.cur.Value
	switch keyword {
	case "rem":
		return nil
	case "end":
		b.finish(nil)
		return nil
	case "print":
		p.next()
		return b.print(p)
	case "let":
		p.next()
		return b.assign(p)
	case "if":
		p.next()
		return b.ifStatement(p)
	case "goto":
		p.next()
		return b.jump(p)
	case "gosub":
		p.next()
		if len(b.gosubStack) >= maxGosubDepth {
			return runtimeError(ErrGosubDepthExceeded, p.line)
		}
		b.gosubStack = append(b.gosubStack, b.pc)
		return b.jump(p)
	case "return":
		if len(b.gosubStack) == 0 {
			return runtimeError(ErrReturnWithoutGosub, p.line)
		}
		b.pc = b.gosubStack[len(b.gosubStack)-1]
		b.gosubStack = b.gosubStack[:len(b.gosubStack)-1]
		return nil
	case "for":
		p.next()
		return b.forStatement(p)
	case "next":
		p.next()
		return b.nextStatement(p)
	}

	if len(keyword) == 1 {
		return b.assign(p)
	}
	return NewBASICError(ErrCategorySyntax, ErrUnknownStatement, p.line).WithDetail(keyword)
}

func (b *TinyBASIC) print(p *parser) error {
	newline := true
	for !p.atEnd() {
		newline = true
		switch p.cur.Type {
		case TOKEN_STRING:
			b.out.WriteString(p.cur.Value)
			p.next()
		case TOKEN_COMMA:
			b.out.WriteByte(' ')
			newline = false
			p.next()
		case TOKEN_SEMICOLON:
			newline = false
			p.next()
		default:
			n, err := p.relation()
			if err != nil {
				return err
			}
			b.out.WriteString(strconv.Itoa(n))
		}
	}
	if newline {
		b.out.WriteByte('\n')
	}
	return b.out.Flush()
}

func (b *TinyBASIC) assign(p *parser) error {
	slot, err := p.variable()
	if err != nil {
		return err
	}
	if err := p.expect(TOKEN_EQ); err != nil {
		return err
	}
	n, err := p.relation()
	if err != nil {
		return err
	}
	if !p.atEnd() {
		return syntaxError(p.line, "unexpected "+describe(p.cur))
	}
	b.vars[slot] = n
	return nil
}

func (b *TinyBASIC) jump(p *parser) error {
	target, err := p.relation()
	if err != nil {
		return err
	}
	idx, ok := b.index[target]
	if !ok {
		return runtimeError(ErrLineNotFound, p.line).WithDetail(strconv.Itoa(target))
	}
	b.pc = idx
	return nil
}

// ifStatement handles "if <rel> then <stmt|number> [else <stmt|number>]".
func (b *TinyBASIC) ifStatement(p *parser) error {
	cond, err := p.relation()
	if err != nil {
		return err
	}
	if err := p.expectKeyword("then"); err != nil {
		return err
	}

	rest := p.cur
	restText := p.lex.Rest()
	thenPart, elsePart := splitElse(tokenText(rest) + restText)

	branch := thenPart
	if cond == 0 {
		branch = elsePart
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return nil
	}
	if branch[0] >= '0' && branch[0] <= '9' {
		branch = "goto " + branch
	}
	return b.statement(newParser(branch, p.line, &b.vars))
}

// splitElse splits at the first "else" keyword outside string literals.
func splitElse(s string) (string, string) {
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			inString = !inString
			continue
		}
		if inString || !strings.HasPrefix(s[i:], "else") {
			continue
		}
		before := i == 0 || !isLetter(s[i-1])
		after := i+4 >= len(s) || !isLetter(s[i+4])
		if before && after {
			return s[:i], s[i+4:]
		}
	}
	return s, ""
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' }

// tokenText renders an already consumed token back to source form.
func tokenText(t Token) string {
	switch t.Type {
	case TOKEN_EOF:
		return ""
	case TOKEN_STRING:
		return `"` + t.Value + `" `
	}
	return t.Value + " "
}

func (b *TinyBASIC) forStatement(p *parser) error {
	slot, err := p.variable()
	if err != nil {
		return err
	}
	if err := p.expect(TOKEN_EQ); err != nil {
		return err
	}
	start, err := p.relation()
	if err != nil {
		return err
	}
	if err := p.expectKeyword("to"); err != nil {
		return err
	}
	limit, err := p.relation()
	if err != nil {
		return err
	}
	step := 1
	if p.cur.Type == TOKEN_IDENTIFIER && p.cur.Value == "step" {
		p.next()
		if step, err = p.relation(); err != nil {
			return err
		}
	}

	// Re-entering a loop on the same variable replaces its frame.
	for i := len(b.forLoops) - 1; i >= 0; i-- {
		if b.forLoops[i].slot == slot {
			b.forLoops = b.forLoops[:i]
			break
		}
	}
	if len(b.forLoops) >= maxForDepth {
		return runtimeError(ErrForDepthExceeded, p.line)
	}

	b.vars[slot] = start
	b.forLoops = append(b.forLoops, forFrame{slot: slot, limit: limit, step: step, body: b.pc})
	return nil
}

func (b *TinyBASIC) nextStatement(p *parser) error {
	if len(b.forLoops) == 0 {
		return runtimeError(ErrNextWithoutFor, p.line)
	}
	frame := b.forLoops[len(b.forLoops)-1]
	if !p.atEnd() {
		slot, err := p.variable()
		if err != nil {
			return err
		}
		if slot != frame.slot {
			return runtimeError(ErrNextMismatch, p.line)
		}
	}

	b.vars[frame.slot] += frame.step
	v := b.vars[frame.slot]
	if (frame.step >= 0 && v <= frame.limit) || (frame.step < 0 && v >= frame.limit) {
		b.pc = frame.body
		return nil
	}
	b.forLoops = b.forLoops[:len(b.forLoops)-1]
	return nil
}
