package storage

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/antibyte/picobasic/pkg/program"
)

const (
	implicitStart = 10
	implicitStep  = 10
	maxLineBytes  = 64 * 1024
)

// parseResult is the temporary table a load fills before anything touches
// the live program.
type parseResult struct {
	lines     []program.Line
	truncated bool
	skipped   int
}

// parseProgram reads program text line by line. A line that starts with
// digits followed by blanks carries its own number; every other non-blank
// line takes the next implicit number (10, 20, 30, ...), counted
// independently of explicit numbers. At most capacity lines are kept.
func parseProgram(r io.Reader, capacity int) (parseResult, error) {
	var res parseResult
	next := implicitStart

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512), maxLineBytes)
	scanner.Split(scanAnyLineEnding)

	for scanner.Scan() {
		text := strings.TrimLeft(scanner.Text(), " \t")
		if text == "" {
			continue
		}

		digits := 0
		for digits < len(text) && text[digits] >= '0' && text[digits] <= '9' {
			digits++
		}

		var number int
		if digits > 0 && digits < len(text) && (text[digits] == ' ' || text[digits] == '\t') {
			n, err := strconv.Atoi(text[:digits])
			if err != nil || n < program.MinLineNumber || n > program.MaxLineNumber {
				res.skipped++
				continue
			}
			number = n
			text = strings.TrimLeft(text[digits:], " \t")
		} else {
			number = next
			next += implicitStep
			if number > program.MaxLineNumber {
				res.skipped++
				continue
			}
		}

		if len(res.lines) >= capacity {
			res.truncated = true
			break
		}
		res.lines = append(res.lines, program.Line{Number: number, Text: text})
	}
	return res, scanner.Err()
}

// scanAnyLineEnding is a bufio.SplitFunc that ends lines at LF, CRLF or a
// lone CR and drops the terminator.
func scanAnyLineEnding(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF {
			// A CR at the end of the chunk may be the first half of CRLF.
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
