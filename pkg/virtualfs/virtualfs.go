// Package virtualfs provides a card volume kept in memory and persisted to
// SQLite. It serves as the storage.FileSystem when no host directory is used.
package virtualfs

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/storage"
)

// ErrFileTooLarge is returned by Close when content exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

func vfsDebugLog(format string, args ...interface{}) {
	logger.Debug(logger.AreaStorage, format, args...)
}

// VirtualFile is a file or a directory of the volume.
type VirtualFile struct {
	Name     string
	IsDir    bool
	Content  []byte
	ModTime  time.Time
	Children map[string]*VirtualFile
	Parent   *VirtualFile
}

// VFS is one card volume. All paths are slash-separated; relative paths
// are resolved against the volume root.
type VFS struct {
	root        *VirtualFile
	mu          sync.RWMutex
	db          *sql.DB
	volume      string
	maxFileSize int
}

// New returns the volume labelled volume, restored from db. A nil db keeps
// the volume in memory only. maxFileSize <= 0 disables the size check.
func New(db *sql.DB, volume string, maxFileSize int) (*VFS, error) {
	vfs := &VFS{
		root:        newDir("/", nil),
		db:          db,
		volume:      volume,
		maxFileSize: maxFileSize,
	}
	if err := vfs.restore(); err != nil {
		return nil, err
	}
	return vfs, nil
}

// Label returns the volume label.
func (vfs *VFS) Label() string { return vfs.volume }

func newDir(name string, parent *VirtualFile) *VirtualFile {
	return &VirtualFile{
		Name:     name,
		IsDir:    true,
		ModTime:  time.Now(),
		Children: make(map[string]*VirtualFile),
		Parent:   parent,
	}
}

// restore loads directories first, shortest path first, then files.
func (vfs *VFS) restore() error {
	if vfs.db == nil {
		return nil
	}

	rows, err := vfs.db.Query(
		`SELECT path FROM virtual_files WHERE volume = ? AND is_dir = 1 ORDER BY length(path)`,
		vfs.volume)
	if err != nil {
		return fmt.Errorf("database error loading directories: %w", err)
	}
	var dirs []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("error scanning directory data: %w", err)
		}
		dirs = append(dirs, p)
	}
	rows.Close()
	for _, p := range dirs {
		parent, name, err := vfs.parentOf(p)
		if err != nil {
			vfsDebugLog("skipping directory %s: %v", p, err)
			continue
		}
		if _, exists := parent.Children[name]; !exists {
			parent.Children[name] = newDir(name, parent)
		}
	}

	fileRows, err := vfs.db.Query(
		`SELECT path, content, mod_time FROM virtual_files WHERE volume = ? AND is_dir = 0`,
		vfs.volume)
	if err != nil {
		return fmt.Errorf("database error loading files: %w", err)
	}
	defer fileRows.Close()

	count := 0
	for fileRows.Next() {
		var (
			p       string
			content []byte
			modTime int64
		)
		if err := fileRows.Scan(&p, &content, &modTime); err != nil {
			return fmt.Errorf("error scanning file data: %w", err)
		}
		parent, name, err := vfs.parentOf(p)
		if err != nil {
			vfsDebugLog("skipping file %s: %v", p, err)
			continue
		}
		parent.Children[name] = &VirtualFile{
			Name:    name,
			Content: content,
			ModTime: time.Unix(modTime, 0),
			Parent:  parent,
		}
		count++
	}
	vfsDebugLog("restored %d directories and %d files of volume %s", len(dirs), count, vfs.volume)
	return fileRows.Err()
}

// normalizePath makes p absolute and removes empty, "." and ".." parts.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	var parts []string
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// resolve walks to the node at p. The caller holds the lock.
func (vfs *VFS) resolve(p string) (*VirtualFile, error) {
	p = normalizePath(p)
	node := vfs.root
	if p == "/" {
		return node, nil
	}
	for _, part := range strings.Split(p[1:], "/") {
		if !node.IsDir {
			return nil, &fs.PathError{Op: "resolve", Path: p, Err: fs.ErrInvalid}
		}
		child, ok := node.Children[part]
		if !ok {
			return nil, &fs.PathError{Op: "resolve", Path: p, Err: fs.ErrNotExist}
		}
		node = child
	}
	return node, nil
}

// parentOf returns the existing parent directory of p and the last path
// element. The caller holds the lock.
func (vfs *VFS) parentOf(p string) (*VirtualFile, string, error) {
	p = normalizePath(p)
	if p == "/" {
		return nil, "", &fs.PathError{Op: "parent", Path: p, Err: fs.ErrInvalid}
	}
	idx := strings.LastIndex(p, "/")
	dirPath, name := p[:idx], p[idx+1:]
	if dirPath == "" {
		dirPath = "/"
	}
	parent, err := vfs.resolve(dirPath)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir {
		return nil, "", &fs.PathError{Op: "parent", Path: dirPath, Err: fs.ErrInvalid}
	}
	return parent, name, nil
}

func (vfs *VFS) persist(p string, content []byte, isDir bool, modTime time.Time) error {
	if vfs.db == nil {
		return nil
	}
	dir := 0
	if isDir {
		dir = 1
	}
	_, err := vfs.db.Exec(
		`INSERT OR REPLACE INTO virtual_files (volume, path, content, is_dir, mod_time) VALUES (?, ?, ?, ?, ?)`,
		vfs.volume, p, content, dir, modTime.Unix(),
	)
	if err != nil {
		logger.Error(logger.AreaDatabase, "saving %s failed: %v", p, err)
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// CreateDirectory creates one directory. Its parent must exist; an existing
// entry yields fs.ErrExist.
func (vfs *VFS) CreateDirectory(name string) error {
	vfs.mu.Lock()
	defer vfs.mu.Unlock()

	p := normalizePath(name)
	parent, base, err := vfs.parentOf(p)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[base]; exists {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}

	dir := newDir(base, parent)
	if err := vfs.persist(p, nil, true, dir.ModTime); err != nil {
		return err
	}
	parent.Children[base] = dir
	vfsDebugLog("created directory %s", p)
	return nil
}

// fileWriter collects content and commits it on Close.
type fileWriter struct {
	vfs    *VFS
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *fileWriter) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	return w.vfs.commit(w.path, w.buf.Bytes())
}

// OpenForWrite creates or replaces a file. The content becomes visible and
// is persisted when the writer is closed; a failed Close leaves the previous
// content in place.
func (vfs *VFS) OpenForWrite(name string) (io.WriteCloser, error) {
	vfs.mu.Lock()
	defer vfs.mu.Unlock()

	p := normalizePath(name)
	parent, base, err := vfs.parentOf(p)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.Children[base]; ok && existing.IsDir {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrInvalid}
	}
	return &fileWriter{vfs: vfs, path: p}, nil
}

func (vfs *VFS) commit(p string, content []byte) error {
	if vfs.maxFileSize > 0 && len(content) > vfs.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d bytes)", ErrFileTooLarge, len(content), vfs.maxFileSize)
	}

	vfs.mu.Lock()
	defer vfs.mu.Unlock()

	parent, base, err := vfs.parentOf(p)
	if err != nil {
		return err
	}
	data := append([]byte(nil), content...)
	modTime := time.Now()
	if err := vfs.persist(p, data, false, modTime); err != nil {
		return err
	}
	parent.Children[base] = &VirtualFile{Name: base, Content: data, ModTime: modTime, Parent: parent}
	vfsDebugLog("wrote %d bytes to %s", len(data), p)
	return nil
}

// OpenForRead returns a reader over a snapshot of the file.
func (vfs *VFS) OpenForRead(name string) (io.ReadCloser, error) {
	vfs.mu.RLock()
	defer vfs.mu.RUnlock()

	node, err := vfs.resolve(name)
	if err != nil {
		return nil, err
	}
	if node.IsDir {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return io.NopCloser(bytes.NewReader(node.Content)), nil
}

// ListDirectory returns the entries of a directory sorted by name.
func (vfs *VFS) ListDirectory(name string) ([]storage.Entry, error) {
	vfs.mu.RLock()
	defer vfs.mu.RUnlock()

	node, err := vfs.resolve(name)
	if err != nil {
		return nil, err
	}
	if !node.IsDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}

	entries := make([]storage.Entry, 0, len(node.Children))
	for childName, child := range node.Children {
		entries = append(entries, storage.Entry{
			Name:  childName,
			Size:  int64(len(child.Content)),
			IsDir: child.IsDir,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
