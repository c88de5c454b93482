package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/antibyte/picobasic/pkg/program"
)

func TestHostFSConfinesPaths(t *testing.T) {
	root := t.TempDir()
	h, err := NewHostFS(filepath.Join(root, "card"))
	if err != nil {
		t.Fatal(err)
	}

	w, err := h.OpenForWrite("../../escape.bas")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("10 rem\n"))
	w.Close()

	if _, err := os.Stat(filepath.Join(root, "card", "escape.bas")); err != nil {
		t.Errorf("file should land inside the card root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.bas")); err == nil {
		t.Error("path escaped the card root")
	}
}

func TestHostFSErrors(t *testing.T) {
	h, err := NewHostFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := h.CreateDirectory("/ubasic"); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateDirectory("/ubasic"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected fs.ErrExist, got %v", err)
	}
	if _, err := h.OpenForRead("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := h.OpenForWrite("/missing/dir/file"); err == nil {
		t.Error("writing below a missing directory should fail")
	}
	if _, err := h.OpenForRead("/ubasic"); err == nil {
		t.Error("reading a directory should fail")
	}
}

func TestHostFSResolverRoundTrip(t *testing.T) {
	h, err := NewHostFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(h, DefaultOptions())

	table := program.NewTable(0)
	table.Insert(10, `print "Hi"`)
	table.Insert(20, "goto 10")

	if _, err := r.Save(table, "loop.bas"); err != nil {
		t.Fatal(err)
	}

	dir, entries, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/ubasic" || len(entries) != 1 || entries[0].Name != "loop.bas" || entries[0].Size == 0 {
		t.Errorf("unexpected listing %s %+v", dir, entries)
	}

	rc, err := h.OpenForRead("/ubasic/loop.bas")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "10 print \"Hi\"\n20 goto 10\n" {
		t.Errorf("unexpected file content %q", data)
	}

	loaded := program.NewTable(0)
	if _, err := r.Load(loaded, "loop.bas"); err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Errorf("expected 2 lines, got %d", loaded.Len())
	}
}
