package storage

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/antibyte/picobasic/pkg/program"

	"github.com/google/go-cmp/cmp"
)

// memFS is an in-memory card with per-path failure injection.
type memFS struct {
	dirs       map[string]bool
	files      map[string][]byte
	denyWrite  map[string]bool
	shortWrite bool
	readErr    error
	opened     []string
}

func newMemFS() *memFS {
	return &memFS{
		dirs:      map[string]bool{"/": true},
		files:     map[string][]byte{},
		denyWrite: map[string]bool{},
	}
}

func abs(name string) string { return path.Clean("/" + name) }

func (m *memFS) CreateDirectory(name string) error {
	p := abs(name)
	if m.dirs[p] {
		return fs.ErrExist
	}
	m.dirs[p] = true
	return nil
}

type memWriter struct {
	fs   *memFS
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.fs.shortWrite && len(p) > 1 {
		n, _ := w.buf.Write(p[:len(p)/2])
		return n, io.ErrShortWrite
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.fs.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (m *memFS) OpenForWrite(name string) (io.WriteCloser, error) {
	m.opened = append(m.opened, "w:"+name)
	p := abs(name)
	if m.denyWrite[name] || !m.dirs[path.Dir(p)] {
		return nil, fs.ErrNotExist
	}
	return &memWriter{fs: m, path: p}, nil
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (m *memFS) OpenForRead(name string) (io.ReadCloser, error) {
	m.opened = append(m.opened, "r:"+name)
	data, ok := m.files[abs(name)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	if m.readErr != nil {
		return io.NopCloser(&failingReader{data: data, err: m.readErr}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTable(t *testing.T, lines map[int]string) *program.Table {
	t.Helper()
	table := program.NewTable(0)
	for n, text := range lines {
		if err := table.Insert(n, text); err != nil {
			t.Fatalf("Insert(%d) failed: %v", n, err)
		}
	}
	return table
}

func sameLines(a, b *program.Table) bool {
	la, lb := a.Lines(), b.Lines()
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] {
			return false
		}
	}
	return true
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fsys := newMemFS()
	r := NewResolver(fsys, DefaultOptions())
	original := newTable(t, map[int]string{
		10: `print "Hello"`,
		20: "for i = 1 to 3",
		30: "print i",
		40: "next i",
	})

	saved, err := r.Save(original, "hello.bas")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Path != "/ubasic/hello.bas" {
		t.Errorf("expected save to /ubasic/hello.bas, got %s", saved.Path)
	}
	if strings.Contains(string(fsys.files["/ubasic/hello.bas"]), " end") {
		t.Error("save must not inject a terminator")
	}

	loaded := program.NewTable(0)
	res, err := r.Load(loaded, "hello.bas")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Lines != 4 || res.Truncated {
		t.Errorf("unexpected load result %+v", res)
	}
	if !sameLines(original, loaded) {
		t.Errorf("round trip mismatch:\n%v\n%v", original.Lines(), loaded.Lines())
	}
}

func TestSavePreservesCaseOnDisk(t *testing.T) {
	fsys := newMemFS()
	r := NewResolver(fsys, DefaultOptions())
	table := newTable(t, map[int]string{10: `PRINT "Hi"`})

	if _, err := r.Save(table, "x"); err != nil {
		t.Fatal(err)
	}
	// Build lowercases outside strings; the saved text is the build output.
	if got := string(fsys.files["/ubasic/x"]); got != "10 print \"Hi\"\n" {
		t.Errorf("unexpected file content %q", got)
	}
}

func TestSaveFallsBackThroughCandidates(t *testing.T) {
	fsys := newMemFS()
	fsys.denyWrite["/ubasic/prog"] = true
	r := NewResolver(fsys, DefaultOptions())

	res, err := r.Save(newTable(t, map[int]string{10: "rem"}), "prog")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/prog" {
		t.Errorf("expected fallback to /prog, got %s", res.Path)
	}
	want := []string{"w:/ubasic/prog", "w:/prog"}
	if strings.Join(fsys.opened, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected attempts %v", fsys.opened)
	}
}

func TestSaveFailures(t *testing.T) {
	table := newTable(t, map[int]string{10: "print 1"})

	t.Run("no candidate", func(t *testing.T) {
		fsys := newMemFS()
		for _, c := range []string{"/ubasic/p", "/p", "p"} {
			fsys.denyWrite[c] = true
		}
		_, err := NewResolver(fsys, DefaultOptions()).Save(table, "p")
		if !errors.Is(err, ErrCreateFailed) {
			t.Errorf("expected ErrCreateFailed, got %v", err)
		}
	})

	t.Run("no candidate on host", func(t *testing.T) {
		fsys, err := NewHostFS(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		res, err := NewResolver(fsys, DefaultOptions()).Save(table, "nodir/prog")
		if !errors.Is(err, ErrCreateFailed) {
			t.Errorf("expected ErrCreateFailed, got %v", err)
		}
		if res.Path != "" {
			t.Errorf("no path expected, got %q", res.Path)
		}
	})

	t.Run("short write", func(t *testing.T) {
		fsys := newMemFS()
		fsys.shortWrite = true
		_, err := NewResolver(fsys, DefaultOptions()).Save(table, "p")
		if !errors.Is(err, ErrShortWrite) {
			t.Errorf("expected ErrShortWrite, got %v", err)
		}
	})

	t.Run("out of memory", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SourceLimit = 4
		_, err := NewResolver(newMemFS(), opts).Save(table, "p")
		if !errors.Is(err, program.ErrOutOfMemory) {
			t.Errorf("expected ErrOutOfMemory, got %v", err)
		}
	})

	if table.Len() != 1 {
		t.Error("save must never modify the table")
	}
}

func TestLoadUppercaseFallback(t *testing.T) {
	fsys := newMemFS()
	fsys.files["/GAME.BAS"] = []byte("10 print 1\n")
	r := NewResolver(fsys, DefaultOptions())

	res, err := r.Load(program.NewTable(0), "game.bas")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Path != "/GAME.BAS" {
		t.Errorf("expected /GAME.BAS, got %s", res.Path)
	}
	want := "r:/ubasic/game.bas,r:/game.bas,r:game.bas,r:/ubasic/GAME.BAS,r:/GAME.BAS"
	if got := strings.Join(fsys.opened, ","); got != want {
		t.Errorf("attempts = %s, want %s", got, want)
	}
}

func TestLoadNotFound(t *testing.T) {
	fsys := newMemFS()
	table := newTable(t, map[int]string{10: "rem keep"})

	_, err := NewResolver(fsys, DefaultOptions()).Load(table, "missing")
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if len(fsys.opened) != 6 {
		t.Errorf("expected 6 attempts, got %d", len(fsys.opened))
	}
	if table.Len() != 1 {
		t.Error("failed load must leave the table alone")
	}
}

func TestLoadLeavesTableOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		readErr error
		wantErr error
	}{
		{"blank only", "\n   \n\t\n\r\n", nil, ErrEmptyFile},
		{"read error", "10 print 1\n20 print 2\n", errors.New("card removed"), ErrIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := newMemFS()
			fsys.files["/ubasic/f"] = []byte(tt.content)
			fsys.readErr = tt.readErr
			table := newTable(t, map[int]string{10: "rem keep", 20: "rem me"})
			before := table.Lines()

			_, err := NewResolver(fsys, DefaultOptions()).Load(table, "f")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			after := table.Lines()
			if len(after) != len(before) || after[0] != before[0] || after[1] != before[1] {
				t.Errorf("table changed: %v -> %v", before, after)
			}
		})
	}
}

func TestLoadParsesNumbering(t *testing.T) {
	fsys := newMemFS()
	fsys.files["/ubasic/mixed"] = []byte("print \"a\"\r\n  30 print 3\rprint \"b\"\n10\n\n70000 print x\n5\tprint 5")
	table := newTable(t, map[int]string{100: "rem old"})

	res, err := NewResolver(fsys, DefaultOptions()).Load(table, "mixed")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("expected one skipped line, got %d", res.Skipped)
	}

	want := []program.Line{
		{Number: 5, Text: "print 5"},
		{Number: 10, Text: `print "a"`},
		{Number: 20, Text: `print "b"`},
		{Number: 30, Text: "10"},
	}
	if diff := cmp.Diff(want, table.Lines()); diff != "" {
		t.Errorf("loaded lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTruncates(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString("print 1\n")
	}
	fsys := newMemFS()
	fsys.files["/ubasic/big"] = []byte(sb.String())

	opts := DefaultOptions()
	opts.MaxLines = 4
	table := program.NewTable(0)
	res, err := NewResolver(fsys, opts).Load(table, "big")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !res.Truncated || res.Lines != 4 || table.Len() != 4 {
		t.Errorf("expected truncation at 4 lines, got %+v len=%d", res, table.Len())
	}
}

func TestLoadLaterDuplicateWins(t *testing.T) {
	fsys := newMemFS()
	fsys.files["/ubasic/dup"] = []byte("10 print 1\nprint 2\n")
	table := program.NewTable(0)

	res, err := NewResolver(fsys, DefaultOptions()).Load(table, "dup")
	if err != nil {
		t.Fatal(err)
	}
	if res.Lines != 2 || table.Len() != 1 {
		t.Errorf("expected 2 read lines folded into 1, got %+v len=%d", res, table.Len())
	}
	if text, _ := table.Get(10); text != "print 2" {
		t.Errorf("later line should win, got %q", text)
	}
}

func TestType(t *testing.T) {
	fsys := newMemFS()
	fsys.files["/notes.txt"] = []byte("Raw TEXT\r\n")
	var out bytes.Buffer

	p, n, err := NewResolver(fsys, DefaultOptions()).Type("notes.txt", &out)
	if err != nil {
		t.Fatal(err)
	}
	want := "----- /notes.txt -----\nRaw TEXT\r\n\n---------------\n"
	if p != "/notes.txt" || n != 10 || out.String() != want {
		t.Errorf("unexpected Type result %s %d %q", p, n, out.String())
	}
}

func TestScanAnyLineEnding(t *testing.T) {
	res, err := parseProgram(strings.NewReader("a\r\nb\rc\nd"), 10)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, l := range res.lines {
		texts = append(texts, l.Text)
	}
	if strings.Join(texts, ",") != "a,b,c,d" {
		t.Errorf("unexpected lines %v", texts)
	}
}
