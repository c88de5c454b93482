package program

import (
	"bytes"
	"errors"
	"strconv"
)

// TerminatorKeyword is the statement that ends a run.
const TerminatorKeyword = "end"

// terminatorEndLimit is the highest number a synthesized terminator gets by
// adding 10 to the last line; beyond it the terminator goes to MaxLineNumber.
const terminatorEndLimit = 65500

const (
	maxNumberWidth    = 5                          // "65535"
	terminatorReserve = maxNumberWidth + 1 + 3 + 1 // "65535 end\n"
)

var ErrOutOfMemory = errors.New("out of memory")

// EstimateSize returns the worst-case size of the source buffer of t,
// including room for a synthesized terminator line.
func EstimateSize(t *Table) int {
	total := terminatorReserve
	for _, line := range t.lines {
		total += maxNumberWidth + 1 + len(line.Text) + 1
	}
	return total
}

// Build renders t as "<number> <text>\n" lines in ascending order and folds
// everything outside double-quoted strings to lowercase. The buffer is
// allocated once; when its estimate exceeds limit (if limit > 0) Build
// fails with ErrOutOfMemory and allocates nothing.
func Build(t *Table, limit int) ([]byte, error) {
	size := EstimateSize(t)
	if limit > 0 && size > limit {
		return nil, ErrOutOfMemory
	}

	buf := make([]byte, 0, size)
	for _, line := range t.lines {
		buf = strconv.AppendInt(buf, int64(line.Number), 10)
		buf = append(buf, ' ')
		buf = append(buf, line.Text...)
		buf = append(buf, '\n')
	}
	lowercaseOutsideStrings(buf)
	return buf, nil
}

// lowercaseOutsideStrings folds ASCII letters in place, toggling string mode
// on every double quote.
func lowercaseOutsideStrings(buf []byte) {
	inString := false
	for i, c := range buf {
		if c == '"' {
			inString = !inString
			continue
		}
		if !inString && c >= 'A' && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
	}
}

// HasTerminator reports whether some line of buf, after an optional line
// number and blanks, starts with the terminator keyword in any case.
func HasTerminator(buf []byte) bool {
	for len(buf) > 0 {
		line := buf
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			line, buf = buf[:i], buf[i+1:]
		} else {
			buf = nil
		}

		p := 0
		for p < len(line) && (line[p] == ' ' || line[p] == '\t' || line[p] == '\r') {
			p++
		}
		for p < len(line) && line[p] >= '0' && line[p] <= '9' {
			p++
		}
		for p < len(line) && (line[p] == ' ' || line[p] == '\t') {
			p++
		}
		rest := line[p:]
		if len(rest) >= len(TerminatorKeyword) && bytes.EqualFold(rest[:len(TerminatorKeyword)], []byte(TerminatorKeyword)) {
			return true
		}
	}
	return false
}

// TerminatorNumber returns the line number a synthesized terminator gets
// after a program whose highest line is maxNumber.
func TerminatorNumber(maxNumber int) int {
	if n := maxNumber + 10; n <= terminatorEndLimit {
		return n
	}
	return MaxLineNumber
}

// EnsureTerminator returns buf unchanged when it already has a terminator
// line. Otherwise it appends "<n> end\n" with n from TerminatorNumber.
// Applying it to its own result is a no-op.
func EnsureTerminator(buf []byte, maxNumber int) []byte {
	if HasTerminator(buf) {
		return buf
	}
	if len(buf) > 0 && buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	buf = strconv.AppendInt(buf, int64(TerminatorNumber(maxNumber)), 10)
	buf = append(buf, ' ')
	buf = append(buf, TerminatorKeyword...)
	return append(buf, '\n')
}
