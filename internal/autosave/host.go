package autosave

import (
	"github.com/drilldocs/drilldocs/internal/content"
)

type sectionHost struct {
	s       *Session
	index   int
	focused func() bool
}

// SectionHost returns a content.Host that feeds an editor's debounced
// output into section i. windowFocused may be nil.
func (s *Session) SectionHost(i int, windowFocused func() bool) content.Host {
	return &sectionHost{s: s, index: i, focused: windowFocused}
}

func (h *sectionHost) ContentChanged(html string) {
	if err := h.s.SetSectionContent(h.index, html); err != nil {
		h.s.log.Debugw("editor change after close", "section", h.index)
	}
}

func (h *sectionHost) WindowFocused() bool {
	if h.focused == nil {
		return true
	}
	return h.focused()
}
