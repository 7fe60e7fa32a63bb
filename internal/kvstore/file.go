package kvstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileExt = ".json"

// File keeps one file per key inside a directory, so the store survives restarts
// without any external service. Writes go through a temp file and rename.
type File struct {
	mu  sync.Mutex
	dir string
	// own remembers what this process last left at each key, so the watcher
	// can tell its own writes from other writers.
	own map[string]ownEntry
}

type ownEntry struct {
	sum     [sha256.Size]byte
	removed bool
}

// NewFile creates dir when missing.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore dir: %w", err)
	}
	return &File{dir: dir, own: make(map[string]ownEntry)}, nil
}

// Dir returns the backing directory.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileExt)
}

// keyFromPath reverses path; ok is false for files that are not store entries.
func keyFromPath(p string) (string, bool) {
	name := filepath.Base(p)
	if !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return key, true
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f.own[key] = ownEntry{sum: sha256.Sum256([]byte(value))}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	f.own[key] = ownEntry{removed: true}
	return nil
}

// written reports whether the file at key still holds exactly what this
// process last wrote or removed there.
func (f *File) written(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.own[key]
	if !ok {
		return false
	}
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return e.removed
	}
	return err == nil && !e.removed && sha256.Sum256(b) == e.sum
}

func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if k, ok := keyFromPath(e.Name()); ok {
			keys = append(keys, k)
		}
	}
	return filterSorted(keys, prefix), nil
}
