package autosave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drilldocs/drilldocs/internal/content"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/document/service"
	"github.com/drilldocs/drilldocs/internal/kvstore"
)

const interval = 20 * time.Millisecond

func newBackend(t *testing.T) (*service.Service, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	store := repository.New(kv)
	t.Cleanup(store.Close)
	return service.New(store, nil), kv
}

func seed(t *testing.T, svc *service.Service) *document.Document {
	t.Helper()
	doc := document.NewDocument("Rig Move", "Ops")
	doc.Sections[0].Content = "<p>Skid the rig</p>"
	saved, err := svc.Save(context.Background(), doc, "")
	require.NoError(t, err)
	return saved
}

func open(t *testing.T, svc *service.Service, id string) *Session {
	t.Helper()
	s, err := Open(context.Background(), svc, id, Options{Interval: interval})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func draftOf(t *testing.T, svc *service.Service, id string) *document.Draft {
	t.Helper()
	d, err := svc.GetDraft(context.Background(), id)
	require.NoError(t, err)
	return d
}

func TestLoadIsClean(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	require.Equal(t, Clean, s.State())
	require.False(t, s.Dirty())
	_, ok := s.Pending()
	require.False(t, ok)

	require.NoError(t, s.SetTitle(doc.Title))
	require.Equal(t, Clean, s.State(), "writing the same value is not a change")
}

func TestDirtySessionWritesDraftAndReopenOffersRestore(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	require.NoError(t, s.SetTitle("Rig Move v2"))
	require.NoError(t, s.UpdateSection(0, "Prep", "<p>Lower the mast</p>"))
	require.True(t, s.Dirty())

	require.Eventually(t, func() bool { return draftOf(t, svc, doc.ID) != nil }, time.Second, 5*time.Millisecond)
	dr := draftOf(t, svc, doc.ID)
	require.Greater(t, dr.Timestamp, doc.LastModified)
	require.Equal(t, dr.Timestamp, s.LastSnapshot())
	s.Close()

	next := open(t, svc, doc.ID)
	pending, ok := next.Pending()
	require.True(t, ok)
	require.Equal(t, "Rig Move v2", pending.Title)
	require.Equal(t, Clean, next.State())

	require.NoError(t, next.RestoreDraft())
	got := next.Document()
	require.Equal(t, "Rig Move v2", got.Title)
	require.Equal(t, dr.Sections, got.Sections)
	require.True(t, next.Dirty())
	require.ErrorIs(t, next.RestoreDraft(), ErrNoPending)
}

func TestDeclineDeletesDraft(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	d := doc.ToDraft(doc.LastModified + 1000)
	d.Title = "Stale edit"
	require.NoError(t, svc.SaveDraft(context.Background(), doc.ID, d))

	s := open(t, svc, doc.ID)
	require.NoError(t, s.DeclineDraft(context.Background()))
	require.Nil(t, draftOf(t, svc, doc.ID))
	require.Equal(t, "Rig Move", s.Document().Title)
	require.Equal(t, Clean, s.State())
}

func TestOlderDraftIsNotOffered(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	require.NoError(t, svc.SaveDraft(context.Background(), doc.ID, doc.ToDraft(doc.LastModified-1)))

	s := open(t, svc, doc.ID)
	_, ok := s.Pending()
	require.False(t, ok)
}

func TestCorruptDraftDiscardedSilently(t *testing.T) {
	svc, kv := newBackend(t)
	doc := seed(t, svc)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, repository.DraftKey(doc.ID), "{not json"))

	s := open(t, svc, doc.ID)
	_, ok := s.Pending()
	require.False(t, ok)
	_, present, err := kv.Get(ctx, repository.DraftKey(doc.ID))
	require.NoError(t, err)
	require.False(t, present)
}

func TestNewDocumentDraftSlot(t *testing.T) {
	svc, _ := newBackend(t)
	ctx := context.Background()
	s := open(t, svc, "")

	require.NoError(t, s.SetTitle("Fresh"))
	require.NoError(t, s.Snapshot())
	require.NotNil(t, draftOf(t, svc, ""))

	s.Close()
	next := open(t, svc, "")
	pending, ok := next.Pending()
	require.True(t, ok)
	require.Equal(t, "Fresh", pending.Title)
	require.NoError(t, next.RestoreDraft())

	saved, err := next.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, "Fresh", saved.Title)
	require.Equal(t, Saved, next.State())
	require.Nil(t, draftOf(t, svc, ""))
	require.Nil(t, draftOf(t, svc, saved.ID))
}

func TestSaveClearsDraftAndStopsTimer(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	ctx := context.Background()
	s := open(t, svc, doc.ID)

	require.NoError(t, s.SetCategory("Safety"))
	require.NoError(t, s.Snapshot())
	require.NotNil(t, draftOf(t, svc, doc.ID))

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, saved.Version)
	require.Equal(t, Saved, s.State())
	require.Nil(t, draftOf(t, svc, doc.ID))

	time.Sleep(3 * interval)
	require.Nil(t, draftOf(t, svc, doc.ID), "no draft written after save")

	require.NoError(t, s.SetFeatured(true))
	require.Equal(t, Dirty, s.State())
}

func TestSaveValidationKeepsDirty(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	require.NoError(t, s.SetEquipmentTags([]string{"flux-capacitor"}))
	_, err := s.Save(context.Background())
	require.ErrorIs(t, err, document.ErrValidation)
	require.True(t, s.Dirty())
}

func TestCloseCancelsPendingWrite(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	require.NoError(t, s.SetOperationsTags([]string{"rig-move"}))
	s.Close()
	time.Sleep(3 * interval)
	require.Nil(t, draftOf(t, svc, doc.ID))
	require.ErrorIs(t, s.SetTitle("late"), ErrClosed)
}

func TestDiscard(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	require.NoError(t, s.SetTitle("Scrap"))
	require.NoError(t, s.Snapshot())
	require.NoError(t, s.Discard(context.Background()))
	require.Equal(t, Discarded, s.State())
	require.Nil(t, draftOf(t, svc, doc.ID))

	stored, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Rig Move", stored.Title)
}

func TestEditorFeedsSession(t *testing.T) {
	svc, _ := newBackend(t)
	doc := seed(t, svc)
	s := open(t, svc, doc.ID)

	ed, err := content.NewEditor(content.Options{
		Content:   doc.Sections[0].Content,
		Host:      s.SectionHost(0, nil),
		FocusPoll: -1,
	})
	require.NoError(t, err)
	defer ed.Dispose()

	ed.Select(content.Cursor(content.Len(ed.Doc())))
	require.True(t, ed.InsertText(" today"))
	ed.Flush()

	require.True(t, s.Dirty())
	require.Equal(t, "<p>Skid the rig today</p>", s.Document().Sections[0].Content)
}

func TestOpenMissingDocument(t *testing.T) {
	svc, _ := newBackend(t)
	_, err := Open(context.Background(), svc, "nope", Options{})
	require.ErrorIs(t, err, document.ErrNotFound)
}
