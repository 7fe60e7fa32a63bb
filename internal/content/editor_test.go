package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	mu          sync.Mutex
	emitted     []string
	windowFocus bool
	onChange    func(html string)
}

func (h *fakeHost) ContentChanged(html string) {
	h.mu.Lock()
	h.emitted = append(h.emitted, html)
	cb := h.onChange
	h.mu.Unlock()
	if cb != nil {
		cb(html)
	}
}

func (h *fakeHost) WindowFocused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.windowFocus
}

func (h *fakeHost) emissions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.emitted...)
}

func newTestEditor(t *testing.T, opts Options) *Editor {
	t.Helper()
	if opts.FocusPoll == 0 {
		opts.FocusPoll = -1
	}
	e, err := NewEditor(opts)
	require.NoError(t, err)
	t.Cleanup(e.Dispose)
	return e
}

func waitLoaded(t *testing.T, e *Editor) {
	t.Helper()
	select {
	case <-e.Loaded():
	case <-time.After(time.Second):
		t.Fatal("extensions never resolved")
	}
}

func TestEditorReadyWithCoreBeforeSecondaryLoads(t *testing.T) {
	release := make(chan struct{})
	e := newTestEditor(t, Options{
		Content: `<p>hello</p>`,
		Loader: func(ctx context.Context) ([]Extension, error) {
			select {
			case <-release:
				return Secondary, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	require.Equal(t, Ready, e.Lifecycle())

	e.Select(Selection{From: 0, To: 5})
	require.False(t, e.ToggleUnderline())
	require.False(t, e.InsertTable(2, 2, true))
	require.Equal(t, `<p>hello</p>`, e.Content())
	require.True(t, e.ToggleBold())

	close(release)
	waitLoaded(t, e)
	require.True(t, e.HasExtension(ExtTable))
	require.True(t, e.ToggleUnderline())
	require.Equal(t, `<p><strong><u>hello</u></strong></p>`, e.Content())
}

func TestEditorLoaderFailureKeepsCore(t *testing.T) {
	e := newTestEditor(t, Options{
		Content: `<p>x</p>`,
		Loader:  func(context.Context) ([]Extension, error) { return nil, errors.New("offline") },
	})
	waitLoaded(t, e)
	require.Equal(t, Ready, e.Lifecycle())
	require.False(t, e.HasExtension(ExtLink))
	e.Select(Selection{From: 0, To: 1})
	require.False(t, e.SetLink("https://a.test"))
	require.True(t, e.ToggleItalic())
}

func TestEditorDebouncesEmissions(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(t, Options{Content: EmptyHTML, Host: host, Debounce: 30 * time.Millisecond})

	for _, s := range []string{"a", "b", "c"} {
		require.True(t, e.InsertText(s))
	}
	require.Empty(t, host.emissions())

	require.Eventually(t, func() bool { return len(host.emissions()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, []string{`<p>abc</p>`}, host.emissions())
}

func TestEditorRestoresFocusAndCursorAfterEmission(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(t, Options{Content: `<p>ab</p>`, Host: host, Debounce: time.Hour})
	host.onChange = func(html string) {
		// the host re-renders: it reapplies the content and steals the cursor
		require.NoError(t, e.SetContent(html))
		e.Select(Cursor(0))
		e.Blur()
	}

	e.Focus()
	e.Select(Cursor(2))
	require.True(t, e.InsertText("c"))
	e.Flush()

	require.Equal(t, []string{`<p>abc</p>`}, host.emissions())
	require.True(t, e.Focused())
	require.Equal(t, Cursor(3), e.Selection())
	require.True(t, e.Undo())
}

func TestEditorRestoreFallsBackToFocusOnly(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(t, Options{Content: `<p>abcdef</p>`, Host: host, Debounce: time.Hour})
	host.onChange = func(string) {
		require.NoError(t, e.SetContent(`<p>a</p>`))
	}
	e.Focus()
	e.Select(Cursor(6))
	require.True(t, e.InsertText("g"))
	e.Flush()

	require.True(t, e.Focused())
	require.Equal(t, Cursor(1), e.Selection())
}

func TestEditorEditDuringEmissionKeepsItsCursor(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(t, Options{Content: `<p>ab</p>`, Host: host, Debounce: time.Hour})
	var once sync.Once
	host.onChange = func(string) {
		once.Do(func() { require.True(t, e.InsertText("XYZ")) })
	}

	e.Focus()
	e.Select(Cursor(2))
	require.True(t, e.InsertText("c"))
	e.Flush()

	require.Equal(t, []string{`<p>abc</p>`}, host.emissions())
	require.Equal(t, `<p>abcXYZ</p>`, e.Content())
	require.Equal(t, Cursor(6), e.Selection())
	require.True(t, e.Focused())
}

func TestEditorReadOnly(t *testing.T) {
	e := newTestEditor(t, Options{Content: `<p><img src="x.png"></p>`, ReadOnly: true})
	waitLoaded(t, e)
	require.False(t, e.ToggleBold())
	require.False(t, e.InsertText("x"))
	require.False(t, e.SetImageSize(0, 100, 100))
	require.False(t, e.HandlesVisible())
	require.False(t, e.AlignmentControlsVisible())
	require.Equal(t, `<img src="x.png">`, e.Render())

	e.SetReadOnly(false)
	require.True(t, e.HandlesVisible())
	require.True(t, e.AlignmentControlsVisible())
	require.True(t, e.SetImageSize(0, 100, 50))
}

func TestEditorReclaimIfEligible(t *testing.T) {
	host := &fakeHost{windowFocus: true}
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEditor(t, Options{Content: `<p>ab</p>`, Host: host, Now: func() time.Time { return t0 }})

	require.False(t, e.ReclaimIfEligible(t0), "never typed")

	e.Focus()
	e.Select(Cursor(2))
	require.True(t, e.InsertText("c"))
	e.Blur()
	e.Select(Cursor(0))

	require.False(t, e.ReclaimIfEligible(t0.Add(6*time.Second)), "idle past the window")

	host.mu.Lock()
	host.windowFocus = false
	host.mu.Unlock()
	require.False(t, e.ReclaimIfEligible(t0.Add(time.Second)), "window lost focus")

	host.mu.Lock()
	host.windowFocus = true
	host.mu.Unlock()
	require.True(t, e.ReclaimIfEligible(t0.Add(time.Second)))
	require.True(t, e.Focused())
	require.Equal(t, Cursor(3), e.Selection())

	require.False(t, e.ReclaimIfEligible(t0.Add(time.Second)), "already focused")
}

func TestEditorFocusPollStopsOnReadOnly(t *testing.T) {
	host := &fakeHost{windowFocus: true}
	e := newTestEditor(t, Options{Content: `<p>ab</p>`, Host: host, FocusPoll: 10 * time.Millisecond})

	e.Focus()
	require.True(t, e.InsertText("c"))
	e.Blur()
	require.Eventually(t, e.Focused, time.Second, 5*time.Millisecond)

	e.SetReadOnly(true)
	select {
	case <-e.pollStop:
	default:
		t.Fatal("poll should stop when read-only")
	}
	e.SetReadOnly(false)
	e.Blur()
	time.Sleep(50 * time.Millisecond)
	require.False(t, e.Focused())
}

func TestEditorDisposeDropsPendingEmission(t *testing.T) {
	host := &fakeHost{}
	e := newTestEditor(t, Options{Content: EmptyHTML, Host: host, Debounce: 20 * time.Millisecond})
	require.True(t, e.InsertText("x"))
	e.Dispose()
	time.Sleep(60 * time.Millisecond)
	require.Empty(t, host.emissions())
	require.Equal(t, Disposed, e.Lifecycle())
	require.False(t, e.ToggleBold())
	require.ErrorIs(t, e.SetContent(`<p>y</p>`), ErrDisposed)
}

func TestEditorUndoRedo(t *testing.T) {
	e := newTestEditor(t, Options{Content: `<p>a</p>`, Debounce: time.Hour})
	e.Select(Cursor(1))
	require.True(t, e.InsertText("b"))
	require.True(t, e.InsertText("c"))
	require.True(t, e.Undo())
	require.Equal(t, `<p>ab</p>`, e.Content())
	require.True(t, e.Redo())
	require.Equal(t, `<p>abc</p>`, e.Content())
	require.False(t, e.Redo())
}

func TestEditorPlaceholder(t *testing.T) {
	e := newTestEditor(t, Options{Content: EmptyHTML, Placeholder: "Start writing..."})
	waitLoaded(t, e)
	text, ok := e.PlaceholderVisible()
	require.True(t, ok)
	require.Equal(t, "Start writing...", text)
	require.True(t, e.InsertText("x"))
	_, ok = e.PlaceholderVisible()
	require.False(t, ok)
}
