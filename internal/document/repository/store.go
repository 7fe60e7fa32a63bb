// Package repository is the persistence store for committed documents, their
// revision history, the activity log, the recently viewed list and drafts.
// Everything is kept as JSON text behind a kvstore.KV.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/kvstore"
	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

// Key layout.
const (
	KeyDocuments        = "documents"
	KeyRecentActivity   = "recentActivity"
	KeyRecentlyViewed   = "recentlyViewed"
	RevisionKeyPrefix   = "documentRevisions-"
	DraftKeyPrefix      = "draft_"
	NewDocumentDraftKey = "draft_new_document"
)

// Caps.
const (
	MaxRevisions      = 10
	MaxActivity       = 50
	MaxRecentlyViewed = 10
)

// errCorrupt marks a payload that could not be decoded.
var errCorrupt = errors.New("corrupt payload")

func RevisionKey(documentID string) string { return RevisionKeyPrefix + documentID }

// DraftKey is the draft slot of a document; an empty id selects the slot of
// a document that has not been saved yet.
func DraftKey(documentID string) string {
	if documentID == "" {
		return NewDocumentDraftKey
	}
	return DraftKeyPrefix + documentID
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store serializes access to the key space. A commit's document, revision and
// activity writes happen under one lock and are rolled back together on
// failure.
type Store struct {
	kv     kvstore.KV
	mu     sync.Mutex
	now    func() time.Time
	log    *zap.SugaredLogger
	events *Broadcaster
}

func New(kv kvstore.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		log:    logger.With("component", "store"),
		events: NewBroadcaster(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe follows changes to the committed collection.
func (s *Store) Subscribe() (<-chan Event, func()) { return s.events.Subscribe() }

// NotifyExternal broadcasts a change made outside this store, e.g. by a second
// process sharing a file backend.
func (s *Store) NotifyExternal(key string) {
	s.publish(Event{Type: EventExternal, Key: key})
}

// Close ends all subscriptions.
func (s *Store) Close() { s.events.Close() }

func (s *Store) publish(ev Event) {
	if n := s.events.Publish(ev); n > 0 {
		s.log.Debugw("slow subscribers dropped event", "type", ev.Type, "dropped", n)
	}
}

func (s *Store) millis() int64 { return s.now().UnixMilli() }

// readJSON decodes key into v. A missing key leaves v untouched and reports
// false. An undecodable payload is removed and reported as missing.
func (s *Store) readJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.discard(ctx, key, fmt.Errorf("%w: %v", errCorrupt, err))
		return false, nil
	}
	return true, nil
}

func (s *Store) discard(ctx context.Context, key string, cause error) {
	metrics.CorruptPayloads.WithLabelValues(keyKind(key)).Inc()
	s.log.Warnw("discarding unreadable stored payload", "key", key, "error", cause)
	if err := s.kv.Remove(ctx, key); err != nil {
		s.log.Warnw("failed to remove unreadable payload", "key", key, "error", err)
	}
}

func keyKind(key string) string {
	switch {
	case strings.HasPrefix(key, RevisionKeyPrefix):
		return "revisions"
	case strings.HasPrefix(key, DraftKeyPrefix):
		return "draft"
	}
	return key
}

type write struct {
	key   string
	value string
}

// apply performs writes in order. If one fails, keys already written are put
// back to their previous values.
func (s *Store) apply(ctx context.Context, writes []write) error {
	type prev struct {
		key    string
		value  string
		exists bool
	}
	var done []prev
	for _, w := range writes {
		old, ok, err := s.kv.Get(ctx, w.key)
		if err == nil {
			err = s.kv.Set(ctx, w.key, w.value)
		}
		if err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				p := done[i]
				var rerr error
				if p.exists {
					rerr = s.kv.Set(ctx, p.key, p.value)
				} else {
					rerr = s.kv.Remove(ctx, p.key)
				}
				if rerr != nil {
					s.log.Errorw("rollback failed", "key", p.key, "error", rerr)
				}
			}
			return fmt.Errorf("write %s: %w", w.key, err)
		}
		done = append(done, prev{key: w.key, value: old, exists: ok})
	}
	return nil
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Store) loadDocuments(ctx context.Context) ([]document.Document, error) {
	var docs []document.Document
	if _, err := s.readJSON(ctx, KeyDocuments, &docs); err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Heal()
	}
	return docs, nil
}

// ListDocuments returns the committed collection in storage order.
func (s *Store) ListDocuments(ctx context.Context) ([]document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadDocuments(ctx)
	if docs == nil && err == nil {
		docs = []document.Document{}
	}
	return docs, err
}

// GetDocument returns nil without error when id is unknown.
func (s *Store) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == id {
			return &docs[i], nil
		}
	}
	return nil, nil
}

// CommitDocument is the only path that stamps versions: an existing id gets
// version+1, a new one version 1. lastModified never moves backwards. The
// revision snapshot and activity entry are written with the document.
func (s *Store) CommitDocument(ctx context.Context, doc *document.Document, user string) (*document.Document, error) {
	if doc == nil || doc.ID == "" {
		return nil, &document.ValidationError{Field: "id", Message: "cannot be blank"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return nil, err
	}
	next := doc.Clone()
	next.Heal()
	now := s.millis()
	kind := EventCreated
	idx := -1
	for i := range docs {
		if docs[i].ID == next.ID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		kind = EventUpdated
		prev := docs[idx]
		next.Version = prev.Version + 1
		next.LastModified = now
		if next.LastModified < prev.LastModified {
			next.LastModified = prev.LastModified
		}
		docs[idx] = *next
	} else {
		next.Version = 1
		next.LastModified = now
		docs = append(docs, *next)
	}

	var revs []document.Revision
	if _, err := s.readJSON(ctx, RevisionKey(next.ID), &revs); err != nil {
		return nil, err
	}
	revs = append(revs, document.Revision{
		ID:           document.NewID(),
		DocumentID:   next.ID,
		Timestamp:    now,
		Version:      next.Version,
		DocumentData: *next.Clone(),
	})
	if over := len(revs) - MaxRevisions; over > 0 {
		revs = revs[over:]
		metrics.RevisionsEvicted.Add(float64(over))
	}

	activity, err := s.pushActivity(ctx, fmt.Sprintf("Document \"%s\" was %s", next.Title, kind), user, now)
	if err != nil {
		return nil, err
	}

	writes, err := encodeWrites(
		RevisionKey(next.ID), revs,
		KeyRecentActivity, activity,
		KeyDocuments, docs,
	)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, writes); err != nil {
		return nil, err
	}
	metrics.DocumentCommits.WithLabelValues(string(kind)).Inc()
	s.log.Infow("document committed", "id", next.ID, "version", next.Version, "kind", kind)
	s.publish(Event{Type: kind, DocumentID: next.ID, Version: next.Version})
	return next, nil
}

// encodeWrites takes alternating key, value pairs.
func encodeWrites(kv ...interface{}) ([]write, error) {
	out := make([]write, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		v, err := encode(kv[i+1])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out = append(out, write{key: key, value: v})
	}
	return out, nil
}

// DeleteDocument removes id and logs the deletion. Unknown ids are ignored.
// Revisions are kept so a deleted document can still be inspected.
func (s *Store) DeleteDocument(ctx context.Context, id, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i := range docs {
		if docs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	title := docs[idx].Title
	docs = append(docs[:idx], docs[idx+1:]...)
	activity, err := s.pushActivity(ctx, fmt.Sprintf("Document \"%s\" was deleted", title), user, s.millis())
	if err != nil {
		return err
	}
	writes, err := encodeWrites(KeyRecentActivity, activity, KeyDocuments, docs)
	if err != nil {
		return err
	}
	if err := s.apply(ctx, writes); err != nil {
		return err
	}
	s.log.Infow("document deleted", "id", id)
	s.publish(Event{Type: EventDeleted, DocumentID: id})
	return nil
}

// ListRevisions returns the retained snapshots oldest first.
func (s *Store) ListRevisions(ctx context.Context, documentID string) ([]document.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revs := []document.Revision{}
	if _, err := s.readJSON(ctx, RevisionKey(documentID), &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// GetRevision returns nil without error when the revision is unknown.
func (s *Store) GetRevision(ctx context.Context, documentID, revisionID string) (*document.Revision, error) {
	revs, err := s.ListRevisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for i := range revs {
		if revs[i].ID == revisionID {
			return &revs[i], nil
		}
	}
	return nil, nil
}

// pushActivity returns the log with a new entry at the front; caller holds mu.
func (s *Store) pushActivity(ctx context.Context, msg, user string, ts int64) ([]document.Activity, error) {
	var log []document.Activity
	if _, err := s.readJSON(ctx, KeyRecentActivity, &log); err != nil {
		return nil, err
	}
	log = append([]document.Activity{{Message: msg, Timestamp: ts, User: user}}, log...)
	if len(log) > MaxActivity {
		log = log[:MaxActivity]
	}
	return log, nil
}

// RecentActivity returns the log newest first.
func (s *Store) RecentActivity(ctx context.Context) ([]document.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := []document.Activity{}
	if _, err := s.readJSON(ctx, KeyRecentActivity, &log); err != nil {
		return nil, err
	}
	return log, nil
}

// RecordView moves documentID to the front of the recently viewed list.
func (s *Store) RecordView(ctx context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	if _, err := s.readJSON(ctx, KeyRecentlyViewed, &ids); err != nil {
		return err
	}
	out := []string{documentID}
	for _, id := range ids {
		if id != documentID && len(out) < MaxRecentlyViewed {
			out = append(out, id)
		}
	}
	writes, err := encodeWrites(KeyRecentlyViewed, out)
	if err != nil {
		return err
	}
	return s.apply(ctx, writes)
}

// RecentlyViewed returns document ids newest first.
func (s *Store) RecentlyViewed(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	if _, err := s.readJSON(ctx, KeyRecentlyViewed, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Clear removes every key the store owns.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{KeyDocuments, KeyRecentActivity, KeyRecentlyViewed}
	for _, prefix := range []string{RevisionKeyPrefix, DraftKeyPrefix} {
		found, err := s.kv.Keys(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s keys: %w", prefix, err)
		}
		keys = append(keys, found...)
	}
	for _, k := range keys {
		if err := s.kv.Remove(ctx, k); err != nil {
			return fmt.Errorf("remove %s: %w", k, err)
		}
	}
	s.log.Infow("store cleared", "keys", len(keys))
	s.publish(Event{Type: EventCleared})
	return nil
}
