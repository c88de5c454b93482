package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/program"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrCreateFailed = errors.New("cannot create file")
	ErrIO           = errors.New("I/O error")
	ErrShortWrite   = errors.New("short write")
	ErrEmptyFile    = errors.New("file empty or unreadable")
	ErrNoName       = errors.New("no file name given")
	ErrNoListing    = errors.New("storage cannot list directories")
)

// DefaultProgramDir is the conventional directory for saved programs.
const DefaultProgramDir = "/ubasic"

// Options tune a Resolver.
type Options struct {
	// ProgramDir is tried first for every name.
	ProgramDir string
	// MaxLines caps the temporary table of a load. Zero uses the table's capacity.
	MaxLines int
	// SourceLimit bounds the buffer built by Save in bytes. Zero means unlimited.
	SourceLimit int
}

// DefaultOptions returns the built-in settings.
func DefaultOptions() Options {
	return Options{
		ProgramDir:  DefaultProgramDir,
		MaxLines:    program.DefaultCapacity,
		SourceLimit: 128 * 1024,
	}
}

// OptionsFromConfig reads the [Storage] and [Program] sections.
func OptionsFromConfig() Options {
	return Options{
		ProgramDir:  configuration.GetString("Storage", "program_dir", DefaultProgramDir),
		MaxLines:    configuration.GetInt("Program", "max_lines", program.DefaultCapacity),
		SourceLimit: configuration.GetInt("Program", "source_limit_kb", 128) * 1024,
	}
}

// SaveResult reports where a program was written.
type SaveResult struct {
	Path  string
	Bytes int
}

// LoadResult reports where a program came from. Lines counts the entries
// read from the file before duplicates were folded by the table.
type LoadResult struct {
	Path      string
	Lines     int
	Truncated bool
	Skipped   int
}

// Resolver maps a typed name to candidate paths on a FileSystem and moves
// programs between files and a program.Table.
type Resolver struct {
	fs       FileSystem
	opts     Options
	dir      string
	prefixes []string
}

// NewResolver returns a Resolver over fsys.
func NewResolver(fsys FileSystem, opts Options) *Resolver {
	dir := strings.TrimSpace(opts.ProgramDir)
	if dir == "" {
		dir = DefaultProgramDir
	}
	dir = path.Clean("/" + dir)

	prefixes := []string{dir + "/", "/", ""}
	if dir == "/" {
		prefixes = prefixes[1:]
	}
	return &Resolver{fs: fsys, opts: opts, dir: dir, prefixes: prefixes}
}

// ProgramDir returns the directory tried first.
func (r *Resolver) ProgramDir() string { return r.dir }

// Candidates returns the paths tried for name, in order.
func (r *Resolver) Candidates(name string) []string {
	out := make([]string, len(r.prefixes))
	for i, prefix := range r.prefixes {
		out[i] = prefix + name
	}
	return out
}

// Save writes the program as typed, without a terminator line, to the first
// candidate path that can be created. The table is never modified.
func (r *Resolver) Save(t *program.Table, name string) (SaveResult, error) {
	if name == "" {
		return SaveResult{}, ErrNoName
	}

	buf, err := program.Build(t, r.opts.SourceLimit)
	if err != nil {
		return SaveResult{}, err
	}

	if err := r.fs.CreateDirectory(r.dir); err != nil && !errors.Is(err, fs.ErrExist) {
		logger.StorageWarn("could not create %s: %v", r.dir, err)
	}

	var (
		w       io.WriteCloser
		target  string
		lastErr error
	)
	for _, candidate := range r.Candidates(name) {
		cw, err := r.fs.OpenForWrite(candidate)
		if err == nil {
			w, target, lastErr = cw, candidate, nil
			break
		}
		lastErr = err
		logger.StorageDebug("open for write %s failed: %v", candidate, err)
	}
	if target == "" {
		return SaveResult{}, fmt.Errorf("%w: %s: %v", ErrCreateFailed, name, lastErr)
	}

	n, writeErr := w.Write(buf)
	closeErr := w.Close()

	switch {
	case errors.Is(writeErr, io.ErrShortWrite) || (writeErr == nil && n < len(buf)):
		return SaveResult{Path: target, Bytes: n}, fmt.Errorf("%w (%d/%d)", ErrShortWrite, n, len(buf))
	case writeErr != nil:
		return SaveResult{Path: target, Bytes: n}, fmt.Errorf("%w: %v", ErrIO, writeErr)
	case closeErr != nil:
		return SaveResult{Path: target, Bytes: n}, fmt.Errorf("%w: %v", ErrIO, closeErr)
	}

	logger.StorageInfo("saved %d lines (%d bytes) to %s", t.Len(), n, target)
	return SaveResult{Path: target, Bytes: n}, nil
}

// Load replaces the program in t with the content of the first readable
// candidate. Nothing in t changes unless at least one line was read and the
// whole file was read without error.
func (r *Resolver) Load(t *program.Table, name string) (LoadResult, error) {
	if name == "" {
		return LoadResult{}, ErrNoName
	}

	rc, target, err := r.openForRead(name)
	if err != nil {
		return LoadResult{}, err
	}
	defer rc.Close()

	capacity := r.opts.MaxLines
	if capacity <= 0 || capacity > t.Cap() {
		capacity = t.Cap()
	}

	parsed, err := parseProgram(rc, capacity)
	if err != nil {
		logger.StorageWarn("reading %s failed: %v", target, err)
		return LoadResult{Path: target}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if len(parsed.lines) == 0 {
		return LoadResult{Path: target, Skipped: parsed.skipped}, ErrEmptyFile
	}

	t.Clear()
	for _, line := range parsed.lines {
		if err := t.Insert(line.Number, line.Text); err != nil {
			logger.StorageWarn("line %d from %s not stored: %v", line.Number, target, err)
		}
	}

	if parsed.truncated {
		logger.StorageWarn("%s truncated at %d lines", target, len(parsed.lines))
	}
	logger.StorageInfo("loaded %d lines from %s", len(parsed.lines), target)

	return LoadResult{
		Path:      target,
		Lines:     len(parsed.lines),
		Truncated: parsed.truncated,
		Skipped:   parsed.skipped,
	}, nil
}

// Type copies the raw content of the first readable candidate to w between
// a header naming the path and a closing rule. It returns the path and the
// number of content bytes.
func (r *Resolver) Type(name string, w io.Writer) (string, int64, error) {
	if name == "" {
		return "", 0, ErrNoName
	}
	rc, target, err := r.openForRead(name)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	fmt.Fprintf(w, "----- %s -----\n", target)
	n, err := io.Copy(w, rc)
	fmt.Fprint(w, "\n---------------\n")
	if err != nil {
		return target, n, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return target, n, nil
}

// List returns the entries of the program directory, falling back to the
// card root when the program directory cannot be read.
func (r *Resolver) List() (string, []Entry, error) {
	lister, ok := r.fs.(Lister)
	if !ok {
		return "", nil, ErrNoListing
	}
	entries, err := lister.ListDirectory(r.dir)
	if err == nil {
		return r.dir, entries, nil
	}
	logger.StorageDebug("listing %s failed: %v", r.dir, err)

	entries, err = lister.ListDirectory("/")
	if err != nil {
		return "/", nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return "/", entries, nil
}

// openForRead tries every candidate for name as typed, then for the
// uppercased name.
func (r *Resolver) openForRead(name string) (io.ReadCloser, string, error) {
	passes := []string{name}
	if upper := strings.ToUpper(name); upper != name {
		passes = append(passes, upper)
	}

	var lastErr error
	for _, typed := range passes {
		for _, candidate := range r.Candidates(typed) {
			rc, err := r.fs.OpenForRead(candidate)
			if err == nil {
				return rc, candidate, nil
			}
			lastErr = err
			logger.StorageDebug("open for read %s failed: %v", candidate, err)
		}
	}
	return nil, "", fmt.Errorf("%w: %s: %v", ErrFileNotFound, name, lastErr)
}
