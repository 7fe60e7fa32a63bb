// Package autosave tracks an editing session over one document: whether it
// has unsaved changes, periodic draft snapshots and the restore offer made
// when a session opens over a newer draft.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

// DefaultInterval is how long a session stays dirty before a draft is written.
const DefaultInterval = 10 * time.Second

const writeTimeout = 5 * time.Second

// State of an editing session.
type State int

const (
	Clean State = iota
	Dirty
	Saved
	Discarded
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "dirty"
	case Saved:
		return "saved"
	case Discarded:
		return "discarded"
	}
	return "clean"
}

var (
	ErrClosed    = errors.New("autosave: session closed")
	ErrNoPending = errors.New("autosave: no pending draft")
)

// Backend is the part of the document service a session needs.
type Backend interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document, user string) (*document.Document, error)
	GetDraft(ctx context.Context, id string) (*document.Draft, error)
	SaveDraft(ctx context.Context, id string, d document.Draft) error
	DiscardDraft(ctx context.Context, id string) error
}

type Options struct {
	Interval time.Duration
	User     string
	Now      func() time.Time
}

// Session owns the in-memory copy of a document while it is edited. All
// methods are safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	backend Backend
	opts    Options
	log     *zap.SugaredLogger

	doc          *document.Document
	isNew        bool
	loadedAt     int64
	state        State
	pending      *document.Draft
	lastSnapshot int64

	timer  *time.Timer
	gen    uint64
	closed bool
}

// Open starts a session. An empty id opens a new, unsaved document. When a
// draft newer than the stored document exists it is held as pending until
// RestoreDraft or DeclineDraft is called.
func Open(ctx context.Context, b Backend, id string, opts Options) (*Session, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{backend: b, opts: opts, log: logger.With("component", "autosave")}
	if id == "" {
		s.doc = document.NewDocument("", "")
		s.isNew = true
	} else {
		d, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		s.doc = d.Clone()
		s.loadedAt = d.LastModified
	}

	draft, err := b.GetDraft(ctx, s.draftKey())
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if draft != nil && (s.isNew || draft.Timestamp > s.loadedAt) {
		s.pending = draft
		s.log.Infow("newer draft found", "key", s.draftKey(), "timestamp", draft.Timestamp)
	}
	return s, nil
}

// draftKey is "" for a document that has never been saved.
func (s *Session) draftKey() string {
	if s.isNew {
		return ""
	}
	return s.doc.ID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty reports unsaved changes, for a leave-page confirmation.
func (s *Session) Dirty() bool { return s.State() == Dirty }

// Document returns a copy of the in-memory document.
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Pending returns the draft awaiting a restore-or-decline answer.
func (s *Session) Pending() (document.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return document.Draft{}, false
	}
	return *s.pending, true
}

// LastSnapshot is the capture time of the last draft written, 0 if none.
func (s *Session) LastSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnapshot
}

// RestoreDraft replaces the editable fields with the pending draft. The
// session becomes dirty.
func (s *Session) RestoreDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.pending == nil {
		return ErrNoPending
	}
	s.doc.ApplyDraft(*s.pending)
	s.lastSnapshot = s.pending.Timestamp
	s.pending = nil
	metrics.DraftOps.WithLabelValues("restored").Inc()
	s.markDirty()
	return nil
}

// DeclineDraft deletes the pending draft and keeps the loaded document.
func (s *Session) DeclineDraft(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.pending == nil {
		return ErrNoPending
	}
	s.pending = nil
	if err := s.backend.DiscardDraft(ctx, s.draftKey()); err != nil {
		return err
	}
	metrics.DraftOps.WithLabelValues("discarded").Inc()
	return nil
}

// Update applies fn to the in-memory document. The session turns dirty
// only when fn actually changed something.
func (s *Session) Update(fn func(d *document.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	before := s.doc.Clone()
	fn(s.doc)
	if reflect.DeepEqual(before, s.doc) {
		return nil
	}
	s.markDirty()
	return nil
}

func (s *Session) SetTitle(title string) error {
	return s.Update(func(d *document.Document) { d.Title = title })
}

func (s *Session) SetCategory(category string) error {
	return s.Update(func(d *document.Document) { d.Category = category })
}

func (s *Session) SetFeatured(featured bool) error {
	return s.Update(func(d *document.Document) { d.IsFeatured = featured })
}

func (s *Session) SetEquipmentTags(tags []string) error {
	return s.Update(func(d *document.Document) { d.EquipmentTags = append([]string{}, tags...) })
}

func (s *Session) SetOperationsTags(tags []string) error {
	return s.Update(func(d *document.Document) { d.OperationsTags = append([]string{}, tags...) })
}

func (s *Session) UpdateSection(i int, title, html string) error {
	return s.Update(func(d *document.Document) { d.UpdateSection(i, title, html) })
}

// SetSectionContent keeps the section title and replaces its content.
func (s *Session) SetSectionContent(i int, html string) error {
	return s.Update(func(d *document.Document) {
		if i >= 0 && i < len(d.Sections) {
			d.UpdateSection(i, d.Sections[i].Title, html)
		}
	})
}

// markDirty restarts the draft timer. Callers hold s.mu.
func (s *Session) markDirty() {
	s.state = Dirty
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Interval, func() { s.snapshot(gen) })
}

func (s *Session) snapshot(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen || s.state != Dirty {
		return
	}
	if err := s.writeDraft(); err != nil {
		s.log.Warnw("autosave draft", "key", s.draftKey(), "error", err)
	}
}

// writeDraft stores the current fields. The capture time always sorts after
// the loaded document so a reopened session offers it. Callers hold s.mu.
func (s *Session) writeDraft() error {
	ts := s.opts.Now().UnixMilli()
	if ts <= s.loadedAt {
		ts = s.loadedAt + 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.backend.SaveDraft(ctx, s.draftKey(), s.doc.ToDraft(ts)); err != nil {
		return err
	}
	s.lastSnapshot = ts
	return nil
}

// Snapshot writes a draft now if the session is dirty.
func (s *Session) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != Dirty {
		return nil
	}
	return s.writeDraft()
}

// Save commits the in-memory document and clears its draft slot. On a
// validation error the session stays dirty and nothing is written.
func (s *Session) Save(ctx context.Context) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	saved, err := s.backend.Save(ctx, s.doc, s.opts.User)
	if err != nil {
		return nil, err
	}
	if s.isNew {
		if err := s.backend.DiscardDraft(ctx, ""); err != nil {
			s.log.Warnw("clear new-document draft", "error", err)
		}
	}
	s.stopTimer()
	s.doc = saved.Clone()
	s.isNew = false
	s.loadedAt = saved.LastModified
	s.lastSnapshot = 0
	s.pending = nil
	s.state = Saved
	return saved, nil
}

// Discard abandons the session's edits and deletes its draft. The session
// is closed afterwards.
func (s *Session) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stopTimer()
	s.closed = true
	s.state = Discarded
	if err := s.backend.DiscardDraft(ctx, s.draftKey()); err != nil {
		return err
	}
	metrics.DraftOps.WithLabelValues("discarded").Inc()
	return nil
}

// Close stops the draft timer. A draft already written stays in place.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.closed = true
}

func (s *Session) stopTimer() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
