package value

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileTable counts the holders of owned files. Each network keeps its own
// table, so two engines resumed from the same checkpoint in one process do
// not keep each other's files alive. Only one live network should own a
// given file at a time.
type FileTable struct {
	mu   sync.Mutex
	refs map[string]int
}

// NewFileTable creates an empty table.
func NewFileTable() *FileTable {
	return &FileTable{refs: make(map[string]int)}
}

// Retain records one more holder of every owned file reachable from v.
func (ft *FileTable) Retain(v *Value) {
	if v == nil {
		return
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	walkFiles(v, func(path string) { ft.refs[path]++ })
}

// Release drops one holder of every owned file reachable from v. Files
// whose last holder is gone are removed from disk; files that were never
// retained are left alone. Removal failures are
// logged and otherwise ignored; a missing file counts as removed.
func (ft *FileTable) Release(v *Value) {
	if v == nil {
		return
	}
	var dead []string
	ft.mu.Lock()
	walkFiles(v, func(path string) {
		n, ok := ft.refs[path]
		if !ok {
			return
		}
		if n <= 1 {
			delete(ft.refs, path)
			dead = append(dead, path)
			return
		}
		ft.refs[path] = n - 1
	})
	ft.mu.Unlock()

	for _, path := range dead {
		err := os.Remove(path)
		switch {
		case err == nil:
			slog.Debug("removed superseded file", "path", path)
		case errors.Is(err, fs.ErrNotExist):
		default:
			slog.Warn("failed to remove superseded file", "path", path, "error", err)
		}
	}
}

// Refs returns the number of holders of the owned file at path.
func (ft *FileTable) Refs(path string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.refs[absPath(path)]
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// walkFiles calls fn once per distinct owned file path in v.
func walkFiles(v *Value, fn func(path string)) {
	seen := make(map[string]bool)
	var walk func(*Value)
	walk = func(v *Value) {
		if v == nil {
			return
		}
		if v.owned && !seen[v.abs] {
			seen[v.abs] = true
			fn(v.abs)
		}
		switch p := v.payload.(type) {
		case []*Value:
			for _, e := range p {
				walk(e)
			}
		case map[string]*Value:
			for _, e := range p {
				walk(e)
			}
		}
	}
	walk(v)
}
