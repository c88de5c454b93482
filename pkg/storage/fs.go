// Package storage resolves program names to files on the card and moves
// programs between files and the line table.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem is the card driver the resolver works on. Paths are
// slash-separated; a path without a leading slash is relative to the card's
// working directory. Errors follow io/fs: fs.ErrExist when a directory is
// already there, fs.ErrNotExist when a file or its parent is missing.
type FileSystem interface {
	CreateDirectory(name string) error
	OpenForWrite(name string) (io.WriteCloser, error)
	OpenForRead(name string) (io.ReadCloser, error)
}

// Entry describes one item of a directory listing.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Lister is implemented by file systems that can enumerate a directory.
type Lister interface {
	ListDirectory(name string) ([]Entry, error)
}

// HostFS maps the card onto a directory of the host file system. Every path
// is confined to Root; ".." never escapes it.
type HostFS struct {
	Root string
}

// NewHostFS returns a HostFS rooted at root, creating root if needed.
func NewHostFS(root string) (*HostFS, error) {
	if root == "" {
		return nil, errors.New("host storage root is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &HostFS{Root: root}, nil
}

func (h *HostFS) hostPath(name string) string {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return filepath.Join(h.Root, filepath.FromSlash(clean))
}

func (h *HostFS) CreateDirectory(name string) error {
	return os.Mkdir(h.hostPath(name), 0755)
}

func (h *HostFS) OpenForWrite(name string) (io.WriteCloser, error) {
	p := h.hostPath(name)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (h *HostFS) OpenForRead(name string) (io.ReadCloser, error) {
	p := h.hostPath(name)
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListDirectory returns the entries of name sorted by name.
func (h *HostFS) ListDirectory(name string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(h.hostPath(name))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil && !de.IsDir() {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
