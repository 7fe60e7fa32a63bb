// Package service is the document facade used by the HTTP handlers and the
// import CLI. The store stays the single source of truth; the search mirror
// and the archive are best-effort side channels.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/internal/content"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/export"
	"github.com/drilldocs/drilldocs/internal/importer"
	"github.com/drilldocs/drilldocs/internal/linkresolver"
	"github.com/drilldocs/drilldocs/pkg/logger"
)

// PresignExpiry is how long archived export URLs stay valid.
const PresignExpiry = 15 * time.Minute

// Indexer mirrors committed documents into a secondary search index.
type Indexer interface {
	Healthy() bool
	IndexAsync(d document.Document)
	RemoveAsync(id string)
	Suggest(query string) ([]string, error)
}

// Archiver keeps copies of exports and revisions in object storage.
type Archiver interface {
	StoreExport(ctx context.Context, documentID, ext, contentType string, data []byte) (string, error)
	StoreRevision(ctx context.Context, rev document.Revision) (string, error)
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Filter narrows ListDocuments. Zero values match everything.
type Filter struct {
	EquipmentTag  string
	OperationsTag string
	Category      string
	FeaturedOnly  bool
}

func (f Filter) match(d document.Document) bool {
	if f.FeaturedOnly && !d.IsFeatured {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, d.Category) {
		return false
	}
	if f.EquipmentTag != "" && !contains(d.EquipmentTags, f.EquipmentTag) {
		return false
	}
	if f.OperationsTag != "" && !contains(d.OperationsTags, f.OperationsTag) {
		return false
	}
	return true
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// ExportResult is a rendered export plus, when archived, its object key and
// a presigned download URL.
type ExportResult struct {
	*export.Result
	ArchiveKey string
	URL        string
}

// Service coordinates the store with taxonomy validation, import, export and
// the optional mirrors.
type Service struct {
	store    *repository.Store
	tax      *document.Taxonomy
	index    Indexer
	archive  Archiver
	importer *importer.Importer
	exporter *export.Exporter
	resolver *linkresolver.Resolver
	log      *zap.SugaredLogger
}

type Option func(*Service)

func WithIndexer(i Indexer) Option { return func(s *Service) { s.index = i } }

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archive = a } }

func WithImporter(im *importer.Importer) Option { return func(s *Service) { s.importer = im } }

func New(store *repository.Store, tax *document.Taxonomy, opts ...Option) *Service {
	if tax == nil {
		tax = document.DefaultTaxonomy()
	}
	s := &Service{store: store, tax: tax, log: logger.With("component", "service")}
	for _, o := range opts {
		o(s)
	}
	if s.importer == nil {
		s.importer = importer.New(nil)
	}
	s.resolver = linkresolver.New(store)
	s.exporter = export.New(s.resolver)
	return s
}

func (s *Service) Store() *repository.Store { return s.store }

func (s *Service) Taxonomy() *document.Taxonomy { return s.tax }

func (s *Service) Resolver() *linkresolver.Resolver { return s.resolver }

func (s *Service) Importer() *importer.Importer { return s.importer }

// List returns documents matching f, most recently modified first.
func (s *Service) List(ctx context.Context, f Filter) ([]document.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		if f.match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastModified > out[j].LastModified })
	return out, nil
}

// Get returns document.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, document.ErrNotFound
	}
	return d, nil
}

// Save applies save-time defaults, validates tags against the taxonomy and
// commits. The draft slot of the document is cleared on success.
func (s *Service) Save(ctx context.Context, doc *document.Document, user string) (*document.Document, error) {
	next := doc.Clone()
	next.PrepareForSave()
	if err := next.Validate(s.tax); err != nil {
		return nil, err
	}
	saved, err := s.store.CommitDocument(ctx, next, user)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteDraft(ctx, saved.ID); err != nil {
		s.log.Warnw("clear draft after save", "id", saved.ID, "error", err)
	}
	s.mirror(ctx, saved)
	return saved, nil
}

func (s *Service) mirror(ctx context.Context, d *document.Document) {
	if s.index != nil {
		s.index.IndexAsync(*d)
	}
	if s.archive == nil {
		return
	}
	revs, err := s.store.ListRevisions(ctx, d.ID)
	if err != nil || len(revs) == 0 {
		return
	}
	if _, err := s.archive.StoreRevision(ctx, revs[len(revs)-1]); err != nil {
		s.log.Warnw("archive revision", "id", d.ID, "version", d.Version, "error", err)
	}
}

// Delete is idempotent. The document's draft slot goes with it.
func (s *Service) Delete(ctx context.Context, id, user string) error {
	if err := s.store.DeleteDocument(ctx, id, user); err != nil {
		return err
	}
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		s.log.Warnw("clear draft after delete", "id", id, "error", err)
	}
	if s.index != nil {
		s.index.RemoveAsync(id)
	}
	return nil
}

func (s *Service) Revisions(ctx context.Context, id string) ([]document.Revision, error) {
	return s.store.ListRevisions(ctx, id)
}

// RestoreRevision commits the snapshot of revisionID as a new save, so the
// version still moves forward.
func (s *Service) RestoreRevision(ctx context.Context, id, revisionID, user string) (*document.Document, error) {
	rev, err := s.store.GetRevision(ctx, id, revisionID)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, document.ErrNotFound
	}
	snap := rev.DocumentData.Clone()
	snap.ID = id
	return s.Save(ctx, snap, user)
}

func (s *Service) Activity(ctx context.Context) ([]document.Activity, error) {
	return s.store.RecentActivity(ctx)
}

func (s *Service) RecordView(ctx context.Context, id string) error {
	return s.store.RecordView(ctx, id)
}

// RecentlyViewed resolves the recently viewed ids, skipping deleted ones.
func (s *Service) RecentlyViewed(ctx context.Context) ([]document.Document, error) {
	ids, err := s.store.RecentlyViewed(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]document.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]document.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Search runs the exact substring search. When that finds nothing and the
// mirror is up, the mirror's typo-tolerant matches are returned as title
// hits instead.
func (s *Service) Search(ctx context.Context, query string) ([]document.SearchResult, error) {
	results, err := s.store.Search(ctx, query)
	if err != nil || len(results) > 0 || strings.TrimSpace(query) == "" {
		return results, err
	}
	if s.index == nil || !s.index.Healthy() {
		return results, nil
	}
	ids, err := s.index.Suggest(query)
	if err != nil {
		s.log.Warnw("search mirror", "query", query, "error", err)
		return results, nil
	}
	for _, id := range ids {
		d, err := s.store.GetDocument(ctx, id)
		if err != nil || d == nil {
			continue
		}
		results = append(results, document.SearchResult{Document: *d, SectionIndex: -1, Excerpt: summary(*d)})
	}
	return results, nil
}

func summary(d document.Document) string {
	for _, sec := range d.Sections {
		text := []rune(strings.TrimSpace(content.PlainTextOf(sec.Content)))
		if len(text) == 0 {
			continue
		}
		if len(text) > 2*repository.ExcerptRadius {
			text = text[:2*repository.ExcerptRadius]
		}
		return string(text)
	}
	return d.Title
}

func (s *Service) GetDraft(ctx context.Context, id string) (*document.Draft, error) {
	return s.store.GetDraft(ctx, id)
}

func (s *Service) SaveDraft(ctx context.Context, id string, d document.Draft) error {
	if d.Timestamp == 0 {
		d.Timestamp = document.NowMillis()
	}
	return s.store.SaveDraft(ctx, id, d)
}

func (s *Service) DiscardDraft(ctx context.Context, id string) error {
	return s.store.DeleteDraft(ctx, id)
}

// Import converts a file into a document. With commit set the document is
// saved; otherwise it is returned for the caller to edit.
func (s *Service) Import(ctx context.Context, filename string, data []byte, opts importer.Options, commit bool, user string) (*document.Document, error) {
	doc, err := s.importer.Import(ctx, filename, data, opts)
	if err != nil {
		return nil, err
	}
	if !commit {
		return doc, nil
	}
	return s.Save(ctx, doc, user)
}

// Export renders document id. When archive is set and an archiver is
// configured the result is also uploaded and a presigned URL returned.
func (s *Service) Export(ctx context.Context, id string, f export.Format, archive bool) (*ExportResult, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.exporter.Render(ctx, doc, f)
	if err != nil {
		return nil, err
	}
	out := &ExportResult{Result: res}
	if !archive || s.archive == nil {
		return out, nil
	}
	key, err := s.archive.StoreExport(ctx, id, f.Extension(), res.ContentType, res.Data)
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	out.ArchiveKey = key
	if out.URL, err = s.archive.PresignedURL(ctx, key, PresignExpiry); err != nil {
		s.log.Warnw("presign export", "key", key, "error", err)
	}
	return out, nil
}

// View renders a document for reading: every section is resolved for
// document links with id as the origin. The back action is set when from
// names an existing document.
func (s *Service) View(ctx context.Context, id, from string) (*View, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.resolver.NewView(id)
	out := &View{Document: *doc, Sections: make([]ViewSection, 0, len(doc.Sections))}
	for i, sec := range doc.Sections {
		if err := v.Put(ctx, sec.ID, sec.Content, false); err != nil {
			return nil, err
		}
		html, _ := v.Region(sec.ID)
		out.Sections = append(out.Sections, ViewSection{
			ID:    sec.ID,
			Title: sec.DisplayTitle(i),
			HTML:  html,
			Links: v.Links(sec.ID),
		})
	}
	out.Back = s.resolver.Back(ctx, from)
	if err := s.store.RecordView(ctx, id); err != nil {
		s.log.Warnw("record view", "id", id, "error", err)
	}
	return out, nil
}

// View is a read-only rendering of a document.
type View struct {
	Document document.Document        `json:"document"`
	Sections []ViewSection            `json:"sections"`
	Back     *linkresolver.BackAction `json:"back,omitempty"`
}

type ViewSection struct {
	ID    string              `json:"id"`
	Title string              `json:"title"`
	HTML  string              `json:"html"`
	Links []linkresolver.Link `json:"links"`
}

// Clear wipes the store.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}
