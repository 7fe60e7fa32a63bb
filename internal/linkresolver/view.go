package linkresolver

import (
	"context"
	"strings"
	"sync"
)

// NavigationRequest asks the host to open Target. Origin is the document the
// request came from, empty for direct navigation.
type NavigationRequest struct {
	Target string `json:"target"`
	Origin string `json:"origin,omitempty"`
}

// BackAction is the labelled return offered on a document opened from a link.
type BackAction struct {
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Back returns the action for returning to origin, or nil when there is no
// origin or it no longer exists.
func (r *Resolver) Back(ctx context.Context, origin string) *BackAction {
	if strings.TrimSpace(origin) == "" {
		return nil
	}
	doc, err := r.lookup.GetDocument(ctx, origin)
	if err != nil || doc == nil {
		return nil
	}
	return &BackAction{Target: origin, Label: "Back to " + firstNonBlank(doc.Title, origin)}
}

type region struct {
	id       string
	editing  bool
	source   string
	rendered string
	links    []Link
}

// View is a displayed document made of regions. Display regions are resolved
// whenever their content changes; editing regions are kept raw and never
// navigate.
type View struct {
	mu       sync.Mutex
	resolver *Resolver
	origin   string
	order    []string
	regions  map[string]*region
}

// NewView starts a view of the document with id origin.
func (r *Resolver) NewView(origin string) *View {
	return &View{resolver: r, origin: origin, regions: map[string]*region{}}
}

func (v *View) Origin() string { return v.origin }

func (v *View) render(ctx context.Context, rg *region) error {
	if rg.editing {
		rg.rendered, rg.links = rg.source, nil
		return nil
	}
	out, links, err := v.resolver.RenderHTML(ctx, rg.source, RenderOptions{Origin: v.origin})
	if err != nil {
		return err
	}
	rg.rendered, rg.links = out, links
	return nil
}

// Put inserts or replaces region id and resolves it unless it is an editing
// surface.
func (v *View) Put(ctx context.Context, id, src string, editing bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rg, ok := v.regions[id]
	if !ok {
		rg = &region{id: id}
		v.regions[id] = rg
		v.order = append(v.order, id)
	}
	rg.source, rg.editing = src, editing
	return v.render(ctx, rg)
}

// SetEditing switches a region between editing and display. Leaving editing
// resolves the region's current content.
func (v *View) SetEditing(ctx context.Context, id string, editing bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rg, ok := v.regions[id]
	if !ok || rg.editing == editing {
		return nil
	}
	rg.editing = editing
	return v.render(ctx, rg)
}

func (v *View) Remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.regions[id]; !ok {
		return
	}
	delete(v.regions, id)
	for i, o := range v.order {
		if o == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Refresh re-resolves every display region, e.g. after the collection
// changed.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range v.order {
		if err := v.render(ctx, v.regions[id]); err != nil {
			return err
		}
	}
	return nil
}

// HTML concatenates the regions in insertion order.
func (v *View) HTML() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var b strings.Builder
	for _, id := range v.order {
		b.WriteString(v.regions[id].rendered)
	}
	return b.String()
}

// Region returns the rendered markup of one region.
func (v *View) Region(id string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rg, ok := v.regions[id]
	if !ok {
		return "", false
	}
	return rg.rendered, true
}

// Links returns the resolved links of a display region.
func (v *View) Links(id string) []Link {
	v.mu.Lock()
	defer v.mu.Unlock()
	if rg, ok := v.regions[id]; ok {
		return append([]Link(nil), rg.links...)
	}
	return nil
}

// Activate handles selection of link index in region id. It reports false
// for editing regions, unknown links and broken targets.
func (v *View) Activate(id string, index int) (NavigationRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rg, ok := v.regions[id]
	if !ok || rg.editing || index < 0 || index >= len(rg.links) {
		return NavigationRequest{}, false
	}
	l := rg.links[index]
	if !l.Navigable() {
		return NavigationRequest{}, false
	}
	return NavigationRequest{Target: l.TargetID, Origin: v.origin}, true
}
