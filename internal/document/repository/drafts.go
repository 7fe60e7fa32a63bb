package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

// SaveDraft writes the draft slot of documentID ("" for a new document).
func (s *Store) SaveDraft(ctx context.Context, documentID string, d document.Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, DraftKey(documentID), string(b)); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	metrics.DraftOps.WithLabelValues("saved").Inc()
	s.log.Debugw("draft saved", "key", DraftKey(documentID), "timestamp", d.Timestamp)
	return nil
}

// GetDraft returns nil when the slot is empty. A draft that cannot be
// decoded, or one without sections, is removed and reported as absent.
func (s *Store) GetDraft(ctx context.Context, documentID string) (*document.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DraftKey(documentID)
	var d document.Draft
	ok, err := s.readJSON(ctx, key, &d)
	if err != nil || !ok {
		return nil, err
	}
	if len(d.Sections) == 0 || d.Timestamp <= 0 {
		s.discard(ctx, key, fmt.Errorf("%w: draft has no sections or timestamp", errCorrupt))
		return nil, nil
	}
	return &d, nil
}

// DeleteDraft empties the slot; an empty slot is not an error.
func (s *Store) DeleteDraft(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, DraftKey(documentID)); err != nil {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}
