package shell

import (
	"errors"
	"strconv"
	"strings"

	"github.com/antibyte/picobasic/pkg/program"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/storage"

	"github.com/dustin/go-humanize"
)

var helpLines = []string{
	"Commands:",
	"  NEW                 - clear program",
	"  LIST [a[-b]]        - list program (optional range)",
	"  RUN                 - run program",
	"  SAVE <name>         - save to %[1]s/<name> (fallback /<name>, <name>)",
	"  LOAD <name>         - load from those same locations",
	"  TYPE <name>         - display a file",
	"  DIR                 - list saved programs",
	"  HELP                - this message",
	"  (Or: <num> <text> to add/replace; '<num>' alone deletes.)",
}

func (s *Shell) cmdHelp() {
	for _, line := range helpLines {
		if strings.Contains(line, "%[1]s") {
			s.printf(line+"\n", s.resolver.ProgramDir())
			continue
		}
		s.printf("%s\n", line)
	}
}

// parseRange reads "a", "a-b", "-b" and "a-". A missing bound is open.
func parseRange(args string) (int, int) {
	low, high := program.Unbounded, program.Unbounded
	if args == "" {
		return low, high
	}
	left, right, hasDash := strings.Cut(args, "-")
	if n, ok := leadingNumber(left); ok {
		low = n
	}
	if hasDash {
		if n, ok := leadingNumber(right); ok {
			high = n
		}
	}
	return low, high
}

func leadingNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:digits])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Shell) cmdList(args string) {
	if s.table.Len() == 0 {
		s.printf("(empty)\n")
		return
	}
	low, high := parseRange(args)
	for number, text := range s.table.Range(low, high) {
		s.printf("%d %s\n", number, text)
	}
}

func (s *Shell) cmdRun() {
	if s.table.Len() == 0 {
		s.printf("(no program)\n")
		return
	}

	res := s.supervisor.Run(s.table)
	switch res.State {
	case runner.OutOfMemory:
		s.printf("ERROR: out of memory\n")
		return
	case runner.Break:
		s.printf("\n** BREAK **\n")
	case runner.StepLimitExceeded:
		s.printf("\n** Too many steps, aborting **\n")
	case runner.Complete:
		if res.Err != nil {
			s.printf("%v\n", res.Err)
		}
	}
	s.printf("\nREADY.\n")
}

func (s *Shell) cmdSave(name string) {
	if name == "" {
		s.printf("Usage: SAVE <name>\n")
		return
	}
	res, err := s.resolver.Save(s.table, name)
	switch {
	case err == nil:
		s.printf("Saved to %s\n", res.Path)
	case errors.Is(err, program.ErrOutOfMemory):
		s.printf("ERROR: out of memory\n")
	case errors.Is(err, storage.ErrCreateFailed):
		s.printf("ERROR: SAVE failed (cannot create file)\n")
	case errors.Is(err, storage.ErrShortWrite):
		s.printf("ERROR: SAVE %v\n", err)
	default:
		s.printf("ERROR: SAVE I/O error\n")
	}
}

func (s *Shell) cmdLoad(name string) {
	if name == "" {
		s.printf("Usage: LOAD <name>\n")
		return
	}
	res, err := s.resolver.Load(s.table, name)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrFileNotFound):
		s.printf("ERROR: LOAD failed (file not found)\n")
		return
	case errors.Is(err, storage.ErrEmptyFile):
		s.printf("ERROR: file empty or unreadable\n")
		return
	default:
		s.printf("ERROR: LOAD I/O error while reading\n")
		return
	}

	if res.Truncated {
		s.printf("WARNING: Truncated at %d lines\n", res.Lines)
	}
	if res.Skipped > 0 {
		s.printf("WARNING: skipped %d line(s) with invalid numbers\n", res.Skipped)
	}
	s.printf("Loaded %d line(s) from %s\n", res.Lines, res.Path)
	s.printf("READY.\n")
}

func (s *Shell) cmdType(name string) {
	if name == "" {
		s.printf("Usage: TYPE <name>\n")
		return
	}
	if _, _, err := s.resolver.Type(name, s.out); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			s.printf("ERROR: not found\n")
			return
		}
		s.printf("ERROR: TYPE I/O error\n")
	}
}

func (s *Shell) cmdDir() {
	dir, entries, err := s.resolver.List()
	if err != nil {
		if errors.Is(err, storage.ErrNoListing) {
			s.printf("ERROR: DIR not supported on this card\n")
			return
		}
		s.printf("ERROR: DIR failed\n")
		return
	}
	s.printf("Directory of %s\n", dir)
	if len(entries) == 0 {
		s.printf("(empty)\n")
		return
	}
	for _, e := range entries {
		if e.IsDir {
			s.printf("  %-20s <DIR>\n", e.Name+"/")
			continue
		}
		s.printf("  %-20s %8s\n", e.Name, humanize.Bytes(uint64(e.Size)))
	}
}
