package content

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drilldocs/drilldocs/pkg/logger"
)

// Lifecycle of an editing surface.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Ready
	Disposed
)

func (l Lifecycle) String() string {
	switch l {
	case Ready:
		return "ready"
	case Disposed:
		return "disposed"
	}
	return "uninitialized"
}

// Default timings.
const (
	DefaultDebounce    = 300 * time.Millisecond
	DefaultFocusWindow = 5 * time.Second
	DefaultFocusPoll   = time.Second
)

// Host is the UI that embeds an editing surface.
type Host interface {
	// ContentChanged receives the serialized tree after each debounced edit.
	// It may call back into the editor, e.g. SetContent.
	ContentChanged(html string)
	// WindowFocused reports whether the host window itself has input focus.
	WindowFocused() bool
}

type Options struct {
	Content     string
	ReadOnly    bool
	Placeholder string
	Debounce    time.Duration
	FocusWindow time.Duration
	// FocusPoll is the period of the focus recovery check; negative disables it.
	FocusPoll time.Duration
	Loader    Loader
	Host      Host
	Now       func() time.Time
}

var ErrDisposed = errors.New("editor disposed")

// Editor is one editing surface over a section's content tree. All methods are
// safe for concurrent use; timer callbacks run on their own goroutines.
type Editor struct {
	mu        sync.Mutex
	lifecycle Lifecycle
	opts      Options
	log       *zap.SugaredLogger

	st         State
	hist       history
	extensions map[Extension]bool
	readOnly   bool

	focused    bool
	lastActive time.Time
	lastCursor int

	emitTimer *time.Timer
	dirty     bool
	// edits counts content changes made through commands and history.
	edits uint64

	loaded     chan struct{}
	cancelLoad context.CancelFunc
	pollStop   chan struct{}
	stopPoll   sync.Once
}

// NewEditor parses opts.Content, registers the core extensions and starts
// loading the secondary set in the background.
func NewEditor(opts Options) (*Editor, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.FocusWindow <= 0 {
		opts.FocusWindow = DefaultFocusWindow
	}
	if opts.FocusPoll == 0 {
		opts.FocusPoll = DefaultFocusPoll
	}
	if opts.Loader == nil {
		opts.Loader = SecondaryLoader
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	doc, err := Parse(opts.Content)
	if err != nil {
		return nil, err
	}
	e := &Editor{
		lifecycle:  Uninitialized,
		opts:       opts,
		log:        logger.With("component", "editor"),
		st:         State{Doc: doc},
		extensions: map[Extension]bool{},
		readOnly:   opts.ReadOnly,
		loaded:     make(chan struct{}),
		pollStop:   make(chan struct{}),
	}
	for _, ext := range Core {
		e.extensions[ext] = true
	}
	e.lifecycle = Ready

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelLoad = cancel
	go e.load(ctx)

	if e.readOnly || opts.FocusPoll < 0 {
		e.stopPoll.Do(func() { close(e.pollStop) })
	} else {
		go e.poll(opts.FocusPoll)
	}
	return e, nil
}

func (e *Editor) load(ctx context.Context) {
	defer close(e.loaded)
	exts, err := e.opts.Loader(ctx)
	if err != nil {
		e.log.Warnw("secondary extensions failed to load; continuing with core set", "error", err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready {
		return
	}
	for _, ext := range exts {
		e.extensions[ext] = true
	}
	e.log.Debugw("secondary extensions loaded", "count", len(exts))
}

// Loaded is closed once the secondary loader has finished, successfully or not.
func (e *Editor) Loaded() <-chan struct{} { return e.loaded }

func (e *Editor) poll(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-e.pollStop:
			return
		case <-t.C:
			e.ReclaimIfEligible(e.opts.Now())
		}
	}
}

func (e *Editor) Lifecycle() Lifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle
}

func (e *Editor) HasExtension(ext Extension) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extensions[ext]
}

// Apply runs cmd if the surface is Ready, editable and ext is registered
// (an empty ext needs none). A successful command is recorded for undo and
// schedules a change emission.
func (e *Editor) Apply(ext Extension, cmd Command) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready || e.readOnly || (ext != "" && !e.extensions[ext]) {
		return false
	}
	next, ok := cmd(e.st)
	if !ok {
		return false
	}
	next.Sel = next.Sel.Clamp(Len(next.Doc))
	// stored marks only change the next insertion, not the content
	if next.Doc.Equal(e.st.Doc) {
		e.st = next
		return true
	}
	e.hist.record(e.st)
	e.st = next
	e.edits++
	e.touch()
	e.scheduleEmit()
	return true
}

func (e *Editor) touch() {
	e.lastActive = e.opts.Now()
	e.lastCursor = e.st.Sel.To
}

func (e *Editor) scheduleEmit() {
	e.dirty = true
	if e.emitTimer == nil {
		e.emitTimer = time.AfterFunc(e.opts.Debounce, e.emit)
		return
	}
	e.emitTimer.Reset(e.opts.Debounce)
}

// emit delivers the pending change to the host, then puts focus and the
// cursor back where they were if the surface had focus. An edit that lands
// while the host handles the change keeps its own selection.
func (e *Editor) emit() {
	e.mu.Lock()
	if e.lifecycle != Ready || !e.dirty {
		e.mu.Unlock()
		return
	}
	e.dirty = false
	out := Serialize(e.st.Doc)
	hadFocus, cursor, edits := e.focused, e.st.Sel.To, e.edits
	host := e.opts.Host
	e.mu.Unlock()

	if host != nil {
		host.ContentChanged(out)
	}

	if !hadFocus {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready {
		return
	}
	e.focused = true
	if e.edits == edits && cursor <= Len(e.st.Doc) {
		e.st.Sel = Cursor(cursor)
	}
}

// Flush emits a pending change immediately.
func (e *Editor) Flush() {
	e.mu.Lock()
	if e.emitTimer != nil {
		e.emitTimer.Stop()
	}
	e.mu.Unlock()
	e.emit()
}

// SetContent replaces the tree from outside without emitting a change.
// Replacing with identical content keeps the undo history.
func (e *Editor) SetContent(src string) error {
	doc, err := Parse(src)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == Disposed {
		return ErrDisposed
	}
	if doc.Equal(e.st.Doc) {
		return nil
	}
	e.hist.reset()
	e.st = State{Doc: doc, Sel: e.st.Sel.Clamp(Len(doc))}
	return nil
}

// Content returns the serialized tree.
func (e *Editor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Serialize(e.st.Doc)
}

// Render is the display output; identical for editable and read-only surfaces.
func (e *Editor) Render() string { return e.Content() }

// Doc returns a copy of the current tree.
func (e *Editor) Doc() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Doc.Clone()
}

func (e *Editor) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Sel
}

// Select moves the selection, clamped to the document. Only a focused
// surface updates the cursor remembered for focus recovery.
func (e *Editor) Select(sel Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready {
		return
	}
	e.st.Sel = sel.Clamp(Len(e.st.Doc))
	e.st.StoredMarks = nil
	if e.focused {
		e.lastCursor = e.st.Sel.To
	}
}

func (e *Editor) Focus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == Ready {
		e.focused = true
	}
}

func (e *Editor) Blur() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused = false
}

func (e *Editor) Focused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// ReclaimIfEligible takes focus back after an unexpected blur when the user
// was typing within the focus window and the host window still has focus.
func (e *Editor) ReclaimIfEligible(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready || e.readOnly || e.focused || e.lastActive.IsZero() {
		return false
	}
	if now.Sub(e.lastActive) > e.opts.FocusWindow {
		return false
	}
	if e.opts.Host == nil || !e.opts.Host.WindowFocused() {
		return false
	}
	e.focused = true
	n := Len(e.st.Doc)
	cursor := e.lastCursor
	if cursor > n {
		cursor = n
	}
	e.st.Sel = Cursor(cursor)
	return true
}

// SetReadOnly switches modes. Entering read-only stops focus recovery for
// good; it is not restarted when the surface becomes editable again.
func (e *Editor) SetReadOnly(ro bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readOnly = ro
	if ro {
		e.focused = false
		e.stopPoll.Do(func() { close(e.pollStop) })
	}
}

func (e *Editor) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// HandlesVisible reports whether image resize handles may be shown.
func (e *Editor) HandlesVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle == Ready && !e.readOnly
}

// AlignmentControlsVisible reports whether alignment controls may be shown.
func (e *Editor) AlignmentControlsVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle == Ready && !e.readOnly && e.extensions[ExtTextAlign]
}

// PlaceholderVisible reports whether the placeholder text should be drawn.
func (e *Editor) PlaceholderVisible() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.extensions[ExtPlaceholder] || e.opts.Placeholder == "" || e.readOnly {
		return "", false
	}
	if Len(e.st.Doc) > 0 || len(e.st.Doc.Content) != 1 || e.st.Doc.Content[0].Type != NodeParagraph {
		return "", false
	}
	return e.opts.Placeholder, true
}

// Dispose tears the surface down. A pending change is dropped.
func (e *Editor) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == Disposed {
		return
	}
	e.lifecycle = Disposed
	e.focused = false
	e.dirty = false
	if e.emitTimer != nil {
		e.emitTimer.Stop()
	}
	e.cancelLoad()
	e.stopPoll.Do(func() { close(e.pollStop) })
}

func (e *Editor) Undo() bool { return e.step((*history).back) }
func (e *Editor) Redo() bool { return e.step((*history).forward) }

func (e *Editor) step(move func(*history, State) (State, bool)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready || e.readOnly {
		return false
	}
	next, ok := move(&e.hist, e.st)
	if !ok {
		return false
	}
	e.st = next
	e.st.Sel = e.st.Sel.Clamp(Len(e.st.Doc))
	e.edits++
	e.touch()
	e.scheduleEmit()
	return true
}

// Command surface.

func (e *Editor) ToggleBold() bool      { return e.toggleMark(Bold()) }
func (e *Editor) ToggleItalic() bool    { return e.toggleMark(Italic()) }
func (e *Editor) ToggleUnderline() bool { return e.toggleMark(Underline()) }
func (e *Editor) ToggleStrike() bool    { return e.toggleMark(Strike()) }
func (e *Editor) ToggleCode() bool      { return e.toggleMark(Code()) }

func (e *Editor) toggleMark(m Mark) bool {
	return e.Apply(markExtension(m.Type), ToggleMark(m))
}

func (e *Editor) SetHeading(level int) bool    { return e.Apply(ExtHeading, SetHeading(level)) }
func (e *Editor) ToggleHeading(level int) bool { return e.Apply(ExtHeading, ToggleHeading(level)) }
func (e *Editor) SetParagraph() bool           { return e.Apply("", SetParagraph()) }

func (e *Editor) SetTextAlign(align string) bool {
	return e.Apply(ExtTextAlign, SetTextAlign(align))
}

func (e *Editor) ToggleBulletList() bool  { return e.toggleList(NodeBulletList) }
func (e *Editor) ToggleOrderedList() bool { return e.toggleList(NodeOrderedList) }
func (e *Editor) ToggleTaskList() bool    { return e.toggleList(NodeTaskList) }

func (e *Editor) toggleList(t NodeType) bool {
	return e.Apply(listExtension(t), ToggleList(t))
}

func (e *Editor) ToggleTaskChecked() bool { return e.Apply(ExtTaskList, ToggleTaskChecked()) }

func (e *Editor) InsertTable(rows, cols int, headerRow bool) bool {
	return e.Apply(ExtTable, InsertTable(rows, cols, headerRow))
}

func (e *Editor) InsertImage(src, align string) bool {
	return e.Apply(ExtImage, InsertImage(src, align, 0, 0))
}

func (e *Editor) SetImageSize(index, width, height int) bool {
	return e.Apply(ExtImage, SetImageSize(index, width, height))
}

func (e *Editor) SetImageAlign(index int, align string) bool {
	return e.Apply(ExtImage, SetImageAlign(index, align))
}

func (e *Editor) InsertHorizontalRule() bool {
	return e.Apply(ExtHorizontalRule, InsertHorizontalRule())
}

func (e *Editor) SetLink(href string) bool { return e.Apply(ExtLink, SetLink(href)) }
func (e *Editor) UnsetLink() bool          { return e.Apply(ExtLink, UnsetLink()) }

func (e *Editor) InsertDocumentLink(targetID, displayTitle string) bool {
	return e.Apply(ExtDocumentLink, InsertDocumentLink(targetID, displayTitle))
}

// Typing.

func (e *Editor) InsertText(text string) bool { return e.Apply("", InsertText(text)) }
func (e *Editor) SplitBlock() bool            { return e.Apply("", SplitBlock()) }
func (e *Editor) DeleteSelection() bool       { return e.Apply("", DeleteSelection()) }
