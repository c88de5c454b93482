// Package program holds the line table of a BASIC program and derives the
// canonical source text handed to the interpreter.
package program

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/antibyte/picobasic/pkg/logger"
)

const (
	// MinLineNumber and MaxLineNumber bound every stored line number.
	MinLineNumber = 1
	MaxLineNumber = 65535
	// DefaultCapacity is the number of lines a table holds when no capacity is given.
	DefaultCapacity = 512
	// Unbounded marks an open end of a Range.
	Unbounded = -1
)

var (
	ErrProgramFull       = errors.New("program full")
	ErrInvalidLineNumber = errors.New("line number 1..65535")
)

// Line is one numbered statement.
type Line struct {
	Number int
	Text   string
}

// Table is a bounded set of program lines kept sorted ascending by number,
// with at most one line per number. A Table is owned by a single caller and
// is not safe for concurrent use.
type Table struct {
	lines    []Line
	capacity int
}

// NewTable returns an empty table holding up to capacity lines.
// A capacity <= 0 selects DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		lines:    make([]Line, 0, capacity),
		capacity: capacity,
	}
}

// Insert stores text under number. Leading blanks are trimmed first; text
// that is empty afterwards deletes the line instead. An existing line keeps
// its position and gets the new text. A new line on a full table is rejected
// with ErrProgramFull and the table is left as it was.
func (t *Table) Insert(number int, text string) error {
	if number < MinLineNumber || number > MaxLineNumber {
		return fmt.Errorf("%w: %d", ErrInvalidLineNumber, number)
	}

	text = strings.TrimLeft(text, " \t")
	idx := t.Find(number)

	if text == "" {
		if idx >= 0 {
			t.removeAt(idx)
			logger.Debug(logger.AreaProgram, "deleted line %d", number)
		}
		return nil
	}

	if idx >= 0 {
		t.lines[idx].Text = text
		logger.Debug(logger.AreaProgram, "replaced line %d", number)
		return nil
	}

	if len(t.lines) >= t.capacity {
		return ErrProgramFull
	}

	ins := 0
	for ins < len(t.lines) && t.lines[ins].Number < number {
		ins++
	}
	t.lines = append(t.lines, Line{})
	copy(t.lines[ins+1:], t.lines[ins:])
	t.lines[ins] = Line{Number: number, Text: text}
	logger.Debug(logger.AreaProgram, "inserted line %d at index %d", number, ins)
	return nil
}

func (t *Table) removeAt(idx int) {
	copy(t.lines[idx:], t.lines[idx+1:])
	t.lines[len(t.lines)-1] = Line{}
	t.lines = t.lines[:len(t.lines)-1]
}

// Find returns the index of number, or -1. The scan stops at the first
// greater number.
func (t *Table) Find(number int) int {
	for i, line := range t.lines {
		if line.Number == number {
			return i
		}
		if line.Number > number {
			break
		}
	}
	return -1
}

// Get returns the text stored under number.
func (t *Table) Get(number int) (string, bool) {
	if idx := t.Find(number); idx >= 0 {
		return t.lines[idx].Text, true
	}
	return "", false
}

// Range yields the lines whose number lies in [low, high]. Either bound may
// be Unbounded. The sequence can be iterated any number of times.
func (t *Table) Range(low, high int) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for _, line := range t.lines {
			if low != Unbounded && line.Number < low {
				continue
			}
			if high != Unbounded && line.Number > high {
				return
			}
			if !yield(line.Number, line.Text) {
				return
			}
		}
	}
}

// All yields every line in ascending order.
func (t *Table) All() iter.Seq2[int, string] {
	return t.Range(Unbounded, Unbounded)
}

// Lines returns a copy of the stored lines.
func (t *Table) Lines() []Line {
	return append([]Line(nil), t.lines...)
}

// Clear drops every line.
func (t *Table) Clear() {
	clear(t.lines)
	t.lines = t.lines[:0]
}

// MaxNumber returns the highest stored line number, or 0 when empty.
func (t *Table) MaxNumber() int {
	if len(t.lines) == 0 {
		return 0
	}
	return t.lines[len(t.lines)-1].Number
}

// Len returns the number of stored lines.
func (t *Table) Len() int { return len(t.lines) }

// Cap returns the maximum number of lines.
func (t *Table) Cap() int { return t.capacity }
