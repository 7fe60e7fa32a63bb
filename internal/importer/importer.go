package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/internal/content"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

// MaxSize bounds the payload accepted by Import.
const MaxSize = 32 << 20

var errTooLarge = errors.New("payload too large")

// Options tune one import.
type Options struct {
	// SplitByHeadings makes one section per top-level heading instead of a
	// single "Document Content" section.
	SplitByHeadings bool
}

// Importer converts files into uncommitted documents.
type Importer struct {
	registry *Registry
	policy   *bluemonday.Policy
	log      *zap.SugaredLogger
}

func New(r *Registry) *Importer {
	if r == nil {
		r = NewRegistry()
	}
	return &Importer{registry: r, policy: NewPolicy(), log: logger.With("component", "importer")}
}

// Supports reports whether filename has a registered converter.
func (im *Importer) Supports(filename string) bool {
	return im.registry.Lookup(filename) != nil
}

// Extensions lists the accepted file extensions.
func (im *Importer) Extensions() []string { return im.registry.SupportedExtensions() }

// Import converts data into a new document titled after filename. Every
// failure is returned as a *document.ImportError and no document is produced.
func (im *Importer) Import(ctx context.Context, filename string, data []byte, opts Options) (*document.Document, error) {
	conv := im.registry.Lookup(filename)
	name := "unsupported"
	if conv != nil {
		name = conv.Name()
	}
	doc, err := im.convert(ctx, conv, filename, data, opts)
	if err != nil {
		metrics.Imports.WithLabelValues(name, "failed").Inc()
		im.log.Errorw("import failed", "file", filename, "converter", name, "error", err)
		return nil, &document.ImportError{Filename: filename, Err: err}
	}
	metrics.Imports.WithLabelValues(name, "ok").Inc()
	im.log.Infow("imported", "file", filename, "converter", name, "sections", len(doc.Sections))
	return doc, nil
}

func (im *Importer) convert(ctx context.Context, conv Converter, filename string, data []byte, opts Options) (*document.Document, error) {
	if conv == nil {
		return nil, errors.New("unsupported file type " + filepath.Ext(filename))
	}
	if len(data) > MaxSize {
		return nil, errTooLarge
	}
	raw, err := conv.Convert(ctx, data)
	if err != nil {
		return nil, err
	}
	tree, err := content.Parse(im.policy.Sanitize(raw))
	if err != nil {
		return nil, err
	}
	body := content.Serialize(tree)

	doc := document.NewDocument(Title(filename), document.ImportedCategory)
	if opts.SplitByHeadings {
		secs, err := document.SectionsFromHeadings(body)
		if err != nil {
			return nil, err
		}
		doc.Sections = secs
	} else {
		s := document.NewSection(document.ImportedSectionName)
		s.Content = body
		doc.Sections = []document.Section{s}
	}
	doc.Heal()
	return doc, nil
}

// Title is filename without directory or extension.
func Title(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
