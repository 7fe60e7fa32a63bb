package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/kvstore"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T) (*Store, *kvstore.Memory, *clock) {
	t.Helper()
	kv := kvstore.NewMemory()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	s := New(kv, WithClock(c.now))
	t.Cleanup(s.Close)
	return s, kv, c
}

func TestCommitNewDocument(t *testing.T) {
	s, _, c := newStore(t)
	ctx := context.Background()
	d := document.NewDocument("Casing plan", "Ops")
	d.Version = 7

	saved, err := s.CommitDocument(ctx, d, "")
	require.NoError(t, err)
	require.Equal(t, 1, saved.Version)
	require.Equal(t, c.t.UnixMilli(), saved.LastModified)

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, saved, got)

	revs, err := s.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, 1, revs[0].Version)

	act, err := s.RecentActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, `Document "Casing plan" was created`, act[0].Message)
}

func TestCommitIncrementsVersionAndKeepsTimeMonotonic(t *testing.T) {
	s, _, c := newStore(t)
	ctx := context.Background()
	d := document.NewDocument("Plan", "Ops")
	first, err := s.CommitDocument(ctx, d, "")
	require.NoError(t, err)

	c.t = c.t.Add(-time.Hour)
	first.Title = "Plan v2"
	second, err := s.CommitDocument(ctx, first, "ana")
	require.NoError(t, err)
	require.Equal(t, first.Version+1, second.Version)
	require.GreaterOrEqual(t, second.LastModified, first.LastModified)

	act, err := s.RecentActivity(ctx)
	require.NoError(t, err)
	require.Equal(t, `Document "Plan v2" was updated`, act[0].Message)
	require.Equal(t, "ana", act[0].User)
}

func TestCommitHealsEmptySections(t *testing.T) {
	s, _, _ := newStore(t)
	d := document.NewDocument("Plan", "Ops")
	d.Sections = nil
	saved, err := s.CommitDocument(context.Background(), d, "")
	require.NoError(t, err)
	require.Len(t, saved.Sections, 1)
}

func TestRevisionEviction(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.RevisionsEvicted)
	d := document.NewDocument("Plan", "Ops")
	for i := 0; i < 13; i++ {
		saved, err := s.CommitDocument(ctx, d, "")
		require.NoError(t, err)
		d = saved
	}
	revs, err := s.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, MaxRevisions)
	for i, r := range revs {
		require.Equal(t, i+4, r.Version)
	}
	require.Equal(t, before+3, testutil.ToFloat64(metrics.RevisionsEvicted))
}

func TestActivityCap(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	for i := 0; i < MaxActivity+5; i++ {
		_, err := s.CommitDocument(ctx, document.NewDocument(fmt.Sprintf("d%d", i), "c"), "")
		require.NoError(t, err)
	}
	act, err := s.RecentActivity(ctx)
	require.NoError(t, err)
	require.Len(t, act, MaxActivity)
	require.Equal(t, fmt.Sprintf(`Document "d%d" was created`, MaxActivity+4), act[0].Message)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	d, err := s.CommitDocument(ctx, document.NewDocument("Plan", "Ops"), "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, "missing", ""))
	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, s.DeleteDocument(ctx, d.ID, ""))
	require.NoError(t, s.DeleteDocument(ctx, d.ID, ""))
	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Empty(t, docs)

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	act, err := s.RecentActivity(ctx)
	require.NoError(t, err)
	require.Len(t, act, 2)
	require.Equal(t, `Document "Plan" was deleted`, act[0].Message)
}

func TestRecordView(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, s.RecordView(ctx, fmt.Sprintf("d%d", i)))
	}
	require.NoError(t, s.RecordView(ctx, "d5"))
	ids, err := s.RecentlyViewed(ctx)
	require.NoError(t, err)
	require.Len(t, ids, MaxRecentlyViewed)
	require.Equal(t, []string{"d5", "d11", "d10", "d9", "d8", "d7", "d6", "d4", "d3", "d2"}, ids)
}

func TestSearch(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	d := document.NewDocument("Cementing Guide", "Ops")
	d.Sections[0].Title = "Slurry"
	d.Sections[0].Content = "<p>Pump the <strong>cement</strong> slurry slowly.</p>"
	_, err := s.CommitDocument(ctx, d, "")
	require.NoError(t, err)

	res, err := s.Search(ctx, "CEMENT")
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, -1, res[0].SectionIndex)
	require.Equal(t, "Cementing Guide", res[0].Excerpt)
	require.Equal(t, 0, res[1].SectionIndex)
	require.Equal(t, "Pump the cement slurry slowly.", res[1].Excerpt)

	res, err = s.Search(ctx, "slurry")
	require.NoError(t, err)
	require.Len(t, res, 2)

	res, err = s.Search(ctx, "   ")
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestExcerptWindow(t *testing.T) {
	text := fmt.Sprintf("%060d needle %060d", 0, 0)
	ex, ok := Excerpt(text, "NEEDLE")
	require.True(t, ok)
	require.Len(t, []rune(ex), ExcerptRadius*2+len("needle"))
	require.Contains(t, ex, "needle")
}

func TestDrafts(t *testing.T) {
	s, kv, _ := newStore(t)
	ctx := context.Background()

	got, err := s.GetDraft(ctx, "")
	require.NoError(t, err)
	require.Nil(t, got)

	d := document.NewDocument("Plan", "Ops")
	require.NoError(t, s.SaveDraft(ctx, "", d.ToDraft(5)))
	_, ok, _ := kv.Get(ctx, NewDocumentDraftKey)
	require.True(t, ok)

	got, err = s.GetDraft(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "Plan", got.Title)

	require.NoError(t, s.DeleteDraft(ctx, ""))
	require.NoError(t, s.DeleteDraft(ctx, ""))
	got, err = s.GetDraft(ctx, "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCorruptDraftIsDiscarded(t *testing.T) {
	s, kv, _ := newStore(t)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.CorruptPayloads.WithLabelValues("draft"))
	require.NoError(t, kv.Set(ctx, DraftKey("abc"), "{not json"))

	got, err := s.GetDraft(ctx, "abc")
	require.NoError(t, err)
	require.Nil(t, got)
	_, ok, _ := kv.Get(ctx, DraftKey("abc"))
	require.False(t, ok)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.CorruptPayloads.WithLabelValues("draft")))

	require.NoError(t, kv.Set(ctx, DraftKey("abc"), `{"title":"x","sections":[]}`))
	got, err = s.GetDraft(ctx, "abc")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCorruptCollectionReadsAsEmpty(t *testing.T) {
	s, kv, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, KeyDocuments, "[{"))
	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Empty(t, docs)

	_, err = s.CommitDocument(ctx, document.NewDocument("Fresh", "c"), "")
	require.NoError(t, err)
	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestClear(t *testing.T) {
	s, kv, _ := newStore(t)
	ctx := context.Background()
	d, err := s.CommitDocument(ctx, document.NewDocument("Plan", "Ops"), "")
	require.NoError(t, err)
	require.NoError(t, s.RecordView(ctx, d.ID))
	require.NoError(t, s.SaveDraft(ctx, d.ID, d.ToDraft(1)))
	require.NoError(t, kv.Set(ctx, "unrelated", "keep"))

	events, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Clear(ctx))

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, keys)
	require.Equal(t, EventCleared, (<-events).Type)
}

func TestSubscribeSeesCommits(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	events, cancel := s.Subscribe()
	defer cancel()

	d, err := s.CommitDocument(ctx, document.NewDocument("Plan", "Ops"), "")
	require.NoError(t, err)
	_, err = s.CommitDocument(ctx, d, "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, d.ID, ""))

	require.Equal(t, Event{Type: EventCreated, DocumentID: d.ID, Version: 1}, <-events)
	require.Equal(t, Event{Type: EventUpdated, DocumentID: d.ID, Version: 2}, <-events)
	require.Equal(t, Event{Type: EventDeleted, DocumentID: d.ID}, <-events)
}

// failingKV fails every Set on one key.
type failingKV struct {
	kvstore.KV
	failKey string
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.KV.Set(ctx, key, value)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	ok := New(mem)
	d, err := ok.CommitDocument(ctx, document.NewDocument("Plan", "Ops"), "")
	require.NoError(t, err)

	s := New(&failingKV{KV: mem, failKey: KeyDocuments})
	_, err = s.CommitDocument(ctx, d, "")
	require.Error(t, err)

	revs, err := s.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	act, err := s.RecentActivity(ctx)
	require.NoError(t, err)
	require.Len(t, act, 1)
	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
}

func TestStoreOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := New(kvstore.NewRedis(client, "dd:"))
	ctx := context.Background()

	d, err := s.CommitDocument(ctx, document.NewDocument("Plan", "Ops"), "")
	require.NoError(t, err)
	require.True(t, mr.Exists("dd:"+KeyDocuments))
	require.True(t, mr.Exists("dd:"+RevisionKey(d.ID)))

	require.NoError(t, s.Clear(ctx))
	require.False(t, mr.Exists("dd:"+KeyDocuments))
}
