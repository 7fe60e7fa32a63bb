// Package importer turns office and web documents into drilldocs documents.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Converter turns a source payload into the HTML subset the content engine
// understands.
type Converter interface {
	Convert(ctx context.Context, input []byte) (string, error)
	SupportedExtensions() []string
	Name() string
}

// Registry routes files to converters by extension. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewRegistry returns a registry with the docx, html and text converters.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[string]Converter)}
	r.Register(NewDocxConverter())
	r.Register(NewHTMLConverter())
	r.Register(NewTextConverter())
	return r
}

// Register associates c with each of its extensions, lower-cased with a
// leading dot.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range c.SupportedExtensions() {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.converters[ext] = c
	}
}

// Lookup returns the converter for filename, or nil.
func (r *Registry) Lookup(filename string) Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.converters[strings.ToLower(filepath.Ext(filename))]
}

// Convert picks a converter by the file's extension.
func (r *Registry) Convert(ctx context.Context, filename string, input []byte) (string, error) {
	c := r.Lookup(filename)
	if c == nil {
		return "", fmt.Errorf("unsupported file type: %q", filepath.Ext(filename))
	}
	return c.Convert(ctx, input)
}

// SupportedExtensions lists registered extensions in sorted order.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.converters))
	for ext := range r.converters {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
