// Package media implements the interactive resize behaviour of embedded
// images. Drag frames are visual only; the final size is committed once on
// release.
package media

import (
	"errors"
	"math"

	"github.com/drilldocs/drilldocs/internal/content"
)

// MinWidth is the smallest width a drag can produce.
const MinWidth = 50

var (
	ErrNoDrag      = errors.New("no resize in progress")
	ErrDragActive  = errors.New("resize already in progress")
	ErrBadGeometry = errors.New("image has no rendered size")
)

// Size is a rendered image size in device-independent units.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Committer persists a released size into the content tree.
// *content.Editor satisfies it.
type Committer interface {
	SetImageSize(index, width, height int) bool
}

// HandleVisible reports whether a resize handle is drawn for an image.
func HandleVisible(selected, editable, readOnly bool) bool {
	return selected && editable && !readOnly
}

// Resize computes the size after a horizontal drag of dx from start. The
// aspect ratio of start is preserved and the width never drops below MinWidth.
// A start without a positive width has no ratio and is returned unchanged.
func Resize(start Size, dx float64) Size {
	if start.Width <= 0 {
		return start
	}
	w := math.Round(math.Max(MinWidth, float64(start.Width)+dx))
	return Size{Width: int(w), Height: int(math.Round(w * float64(start.Height) / float64(start.Width)))}
}

// Drag tracks one handle-press to release sequence for the image at Index
// (document order, see content.Images).
type Drag struct {
	Index   int
	start   Size
	originX float64
	current Size
	active  bool
}

// Begin captures the rendered size at handle-press.
func (d *Drag) Begin(index int, rendered Size, x float64) error {
	if d.active {
		return ErrDragActive
	}
	if rendered.Width <= 0 || rendered.Height <= 0 {
		return ErrBadGeometry
	}
	*d = Drag{Index: index, start: rendered, originX: x, current: rendered, active: true}
	return nil
}

func (d *Drag) Active() bool { return d.active }

// Move returns the frame size for pointer position x.
func (d *Drag) Move(x float64) (Size, error) {
	if !d.active {
		return Size{}, ErrNoDrag
	}
	d.current = Resize(d.start, x-d.originX)
	return d.current, nil
}

// Release ends the drag and commits the last frame through c.
func (d *Drag) Release(c Committer) (Size, error) {
	if !d.active {
		return Size{}, ErrNoDrag
	}
	d.active = false
	final := d.current
	if !c.SetImageSize(d.Index, final.Width, final.Height) {
		return final, errors.New("image size was not applied")
	}
	return final, nil
}

// Cancel abandons the drag without committing.
func (d *Drag) Cancel() { d.active = false }

// RenderedSize reads the persisted size of an image node, falling back to
// the natural size when the node has none.
func RenderedSize(img *content.Node, natural Size) Size {
	w, okW := img.IntAttr(content.AttrWidth)
	h, okH := img.IntAttr(content.AttrHeight)
	switch {
	case okW && okH:
		return Size{Width: w, Height: h}
	case okW && natural.Width > 0:
		return Size{Width: w, Height: int(math.Round(float64(w) * float64(natural.Height) / float64(natural.Width)))}
	}
	return natural
}
