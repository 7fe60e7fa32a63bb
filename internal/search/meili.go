// Package search mirrors committed documents into Meilisearch.
//
// The key-value store stays authoritative. The mirror is fire-and-forget and
// only consulted as a typo-tolerant fallback when the exact substring search
// finds nothing.
package search

import (
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/content"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/breaker"
	"github.com/drilldocs/drilldocs/pkg/logger"
)

const (
	DefaultIndex   = "drilldocs_documents"
	healthInterval = 10 * time.Second
	suggestLimit   = 20
)

// ErrUnavailable is returned while Meilisearch is unreachable or unset.
var ErrUnavailable = errors.New("search mirror unavailable")

// Record is the shape stored in the index.
type Record struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	EquipmentTags  []string `json:"equipmentTags"`
	OperationsTags []string `json:"operationsTags"`
	Body           string   `json:"body"`
	LastModified   int64    `json:"lastModified"`
}

// NewRecord flattens a document into an index record.
func NewRecord(d document.Document) Record {
	parts := make([]string, 0, len(d.Sections)*2)
	for i, s := range d.Sections {
		parts = append(parts, s.DisplayTitle(i), content.PlainTextOf(s.Content))
	}
	return Record{
		ID:             d.ID,
		Title:          d.Title,
		Category:       d.Category,
		EquipmentTags:  d.EquipmentTags,
		OperationsTags: d.OperationsTags,
		Body:           strings.Join(parts, "\n"),
		LastModified:   d.LastModified,
	}
}

// Mirror is a Meilisearch-backed secondary index. A nil *Mirror is valid
// and permanently unavailable.
type Mirror struct {
	client  meili.ServiceManager
	index   string
	cb      *gobreaker.CircuitBreaker
	healthy atomic.Bool
	done    chan struct{}
	log     *zap.SugaredLogger
}

// NewMirror connects to Meilisearch. It returns nil when no URL is set.
func NewMirror(cfg config.SearchConfig) *Mirror {
	if cfg.MeiliURL == "" {
		return nil
	}
	idx := cfg.Index
	if idx == "" {
		idx = DefaultIndex
	}
	m := &Mirror{
		client: meili.New(cfg.MeiliURL, meili.WithAPIKey(cfg.MeiliKey)),
		index:  idx,
		cb:     breaker.New(breaker.DefaultConfig("meilisearch")),
		done:   make(chan struct{}),
		log:    logger.With("component", "search"),
	}
	if _, err := m.client.Health(); err != nil {
		m.log.Warnw("meilisearch unavailable", "url", cfg.MeiliURL, "error", err)
	} else {
		m.healthy.Store(true)
		m.configure()
	}
	go m.healthLoop()
	return m
}

func (m *Mirror) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: m.index, PrimaryKey: "id"}); err != nil {
		m.log.Debugw("create index", "index", m.index, "error", err)
	}
	searchable := []string{"title", "body", "category"}
	if _, err := m.client.Index(m.index).UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warnw("update searchable attributes", "index", m.index, "error", err)
	}
}

func (m *Mirror) healthLoop() {
	t := time.NewTicker(healthInterval)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.log.Infow("meilisearch recovered", "index", m.index)
				m.configure()
			}
		}
	}
}

// Healthy reports whether the last health probe succeeded.
func (m *Mirror) Healthy() bool {
	return m != nil && m.healthy.Load()
}

// Close stops the health monitor.
func (m *Mirror) Close() {
	if m != nil {
		close(m.done)
	}
}

func (m *Mirror) do(fn func() (interface{}, error)) (interface{}, error) {
	if !m.Healthy() {
		return nil, ErrUnavailable
	}
	return m.cb.Execute(fn)
}

// Put adds or replaces a document in the index.
func (m *Mirror) Put(d document.Document) error {
	_, err := m.do(func() (interface{}, error) {
		return m.client.Index(m.index).AddDocuments([]Record{NewRecord(d)}, nil)
	})
	return err
}

// Remove deletes a document from the index.
func (m *Mirror) Remove(id string) error {
	_, err := m.do(func() (interface{}, error) {
		return m.client.Index(m.index).DeleteDocument(id, nil)
	})
	return err
}

// IndexAsync is Put without waiting. Failures are logged.
func (m *Mirror) IndexAsync(d document.Document) {
	if !m.Healthy() {
		return
	}
	go func() {
		if err := m.Put(d); err != nil {
			m.log.Warnw("index document", "id", d.ID, "error", err)
		}
	}()
}

// RemoveAsync is Remove without waiting.
func (m *Mirror) RemoveAsync(id string) {
	if !m.Healthy() {
		return
	}
	go func() {
		if err := m.Remove(id); err != nil {
			m.log.Warnw("remove document", "id", id, "error", err)
		}
	}()
}

// Suggest returns ids of documents matching query in relevance order.
func (m *Mirror) Suggest(query string) ([]string, error) {
	res, err := m.do(func() (interface{}, error) {
		return m.client.Index(m.index).Search(query, &meili.SearchRequest{
			Limit:                suggestLimit,
			AttributesToRetrieve: []string{"id"},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := res.(*meili.SearchResponse)
	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if id := hitID(hit); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func hitID(hit meili.Hit) string {
	raw, ok := hit["id"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
