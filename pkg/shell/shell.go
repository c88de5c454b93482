// Package shell interprets console input one line at a time: numbered lines
// edit the program, everything else is a command.
package shell

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/program"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/storage"
)

const (
	// DefaultMaxLineChars is the longest input line kept; the rest is dropped.
	DefaultMaxLineChars = 255
	maxCommandChars     = 15
)

// Shell owns one program and serializes every operation on it. A Shell is
// driven by a single console and is not safe for concurrent use.
type Shell struct {
	table        *program.Table
	resolver     *storage.Resolver
	supervisor   *runner.Supervisor
	out          io.Writer
	maxLineChars int
}

// New returns a Shell writing all user-facing text to out.
func New(table *program.Table, resolver *storage.Resolver, supervisor *runner.Supervisor, out io.Writer) *Shell {
	return &Shell{
		table:        table,
		resolver:     resolver,
		supervisor:   supervisor,
		out:          out,
		maxLineChars: configuration.GetInt("Program", "max_line_chars", DefaultMaxLineChars),
	}
}

// Table returns the program edited by s.
func (s *Shell) Table() *program.Table { return s.table }

// Banner prints the greeting shown when a console attaches.
func (s *Shell) Banner() {
	s.printf("picoBASIC\n")
	s.printf("--------------------------------\n")
	s.printf("READY.\n")
}

func (s *Shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// truncateLine cuts input to at most limit bytes without splitting a rune.
func truncateLine(input string, limit int) string {
	if limit <= 0 || len(input) <= limit {
		return input
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(input[cut]) {
		cut--
	}
	return input[:cut]
}

// Execute handles one input line. Every failure is reported on the output;
// none ends the session.
func (s *Shell) Execute(input string) {
	input = truncateLine(input, s.maxLineChars)
	line := strings.TrimSpace(input)
	if line == "" {
		return
	}

	if line[0] >= '0' && line[0] <= '9' {
		s.editLine(line)
		return
	}

	cmd, args := splitCommand(line)
	logger.Debug(logger.AreaShell, "command %s args %q", cmd, args)

	switch cmd {
	case "HELP", "?":
		s.cmdHelp()
	case "NEW":
		s.table.Clear()
		s.printf("READY.\n")
	case "LIST":
		s.cmdList(args)
	case "RUN":
		s.cmdRun()
	case "SAVE":
		s.cmdSave(args)
	case "LOAD":
		s.cmdLoad(args)
	case "TYPE":
		s.cmdType(args)
	case "DIR":
		s.cmdDir()
	default:
		s.printf("Unknown: %s  (type HELP)\n", cmd)
	}
}

// splitCommand returns the uppercased first word, cut to the command
// length, and the trimmed remainder.
func splitCommand(line string) (string, string) {
	end := strings.IndexAny(line, " \t")
	word, rest := line, ""
	if end >= 0 {
		word, rest = line[:end], strings.TrimSpace(line[end:])
	}
	if len(word) > maxCommandChars {
		word = word[:maxCommandChars]
	}
	return strings.ToUpper(word), rest
}

// editLine handles "<number> <text>" and "<number>".
func (s *Shell) editLine(line string) {
	digits := 0
	for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	number, err := strconv.Atoi(line[:digits])
	if err != nil || number < program.MinLineNumber || number > program.MaxLineNumber {
		s.printf("ERROR: %v\n", program.ErrInvalidLineNumber)
		return
	}

	if err := s.table.Insert(number, line[digits:]); err != nil {
		s.printf("ERROR: %v\n", err)
	}
}
