// Command docimport converts .docx, .html and .txt files into documents of
// the configured store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/document/service"
	"github.com/drilldocs/drilldocs/internal/importer"
	"github.com/drilldocs/drilldocs/internal/kvstore"
	"github.com/drilldocs/drilldocs/internal/search"
	"github.com/drilldocs/drilldocs/pkg/logger"
)

func main() {
	split := flag.Bool("split", false, "start a new section at every heading")
	category := flag.String("category", "", "category for imported documents (default Imported)")
	featured := flag.Bool("featured", false, "mark imported documents as featured")
	user := flag.String("user", "docimport", "author recorded in the activity log")
	dryRun := flag.Bool("dry-run", false, "print the converted documents as JSON instead of saving")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	backend, err := kvstore.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer backend.Close()

	store := repository.New(backend.KV)
	defer store.Close()
	var opts []service.Option
	if mirror := search.NewMirror(cfg.Search); mirror != nil {
		defer mirror.Close()
		opts = append(opts, service.WithIndexer(mirror))
	}
	svc := service.New(store, nil, opts...)

	failed := process(ctx, svc, flag.Args(), runOptions{
		split:    *split,
		category: *category,
		featured: *featured,
		user:     *user,
		dryRun:   *dryRun,
	}, os.Stdout)
	if failed > 0 {
		os.Exit(1)
	}
}

type runOptions struct {
	split    bool
	category string
	featured bool
	user     string
	dryRun   bool
}

// process imports every path, writing one line per saved document (or the
// converted JSON on a dry run) to out. It returns the number of failures.
func process(ctx context.Context, svc *service.Service, paths []string, o runOptions, out io.Writer) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	failed := 0
	for _, path := range paths {
		doc, err := importFile(ctx, svc, path, importer.Options{SplitByHeadings: o.split})
		if err != nil {
			logger.Errorf("%s: %v", path, err)
			failed++
			continue
		}
		if c := strings.TrimSpace(o.category); c != "" {
			doc.Category = c
		}
		doc.IsFeatured = o.featured
		if o.dryRun {
			if err := enc.Encode(doc); err != nil {
				logger.Errorf("%s: write: %v", path, err)
				failed++
			}
			continue
		}
		saved, err := svc.Save(ctx, doc, o.user)
		if err != nil {
			logger.Errorf("%s: save: %v", path, err)
			failed++
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%d section(s)\n", saved.ID, saved.Title, len(saved.Sections)); err != nil {
			logger.Errorf("%s: write: %v", path, err)
			failed++
		}
	}
	return failed
}

func importFile(ctx context.Context, svc *service.Service, path string, opts importer.Options) (*document.Document, error) {
	if !svc.Importer().Supports(path) {
		return nil, fmt.Errorf("unsupported file type; want one of %s", strings.Join(svc.Importer().Extensions(), ", "))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > importer.MaxSize {
		return nil, fmt.Errorf("file is larger than %d bytes", importer.MaxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return svc.Import(ctx, filepath.Base(path), data, opts, false, "")
}
