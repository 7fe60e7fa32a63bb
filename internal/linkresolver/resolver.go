// Package linkresolver renders document-link marks outside of editing
// surfaces: each link is resolved against the store, styled by whether its
// target exists, and turned into a navigation request when activated.
package linkresolver

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/drilldocs/drilldocs/pkg/metrics"
)

const (
	BrokenLabel = "Document not found"

	ClassLink     = "document-link"
	ClassResolved = "document-link--resolved"
	ClassBroken   = "document-link--broken"

	// DefaultViewPath is where resolved links point when rendered as anchors.
	DefaultViewPath = "/api/documents/%s/view"
)

// Lookup finds committed documents; a missing id yields (nil, nil).
type Lookup interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
}

type Status int

const (
	StatusBroken Status = iota
	StatusResolved
)

func (s Status) String() string {
	if s == StatusResolved {
		return "resolved"
	}
	return "broken"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Link is one resolved document-link occurrence.
type Link struct {
	Index        int    `json:"index"`
	TargetID     string `json:"targetId"`
	DisplayTitle string `json:"displayTitle,omitempty"`
	Text         string `json:"text"`
	Label        string `json:"label"`
	Status       Status `json:"status"`
}

func (l Link) Navigable() bool { return l.Status == StatusResolved }

// Resolver maps document-link marks to live documents.
type Resolver struct {
	lookup Lookup
	// ViewPath is a fmt pattern taking the target id.
	ViewPath string
	log      *zap.SugaredLogger
}

func New(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup, ViewPath: DefaultViewPath, log: logger.With("component", "linkresolver")}
}

// Resolve picks a label for one link: the target's stored title, then the
// title captured in the mark, then the mark's own text. Missing targets and
// lookup failures both resolve as broken.
func (r *Resolver) Resolve(ctx context.Context, targetID, displayTitle, text string) Link {
	l := Link{TargetID: targetID, DisplayTitle: displayTitle, Text: text}
	var doc *document.Document
	if targetID != "" {
		var err error
		doc, err = r.lookup.GetDocument(ctx, targetID)
		if err != nil {
			r.log.Warnw("resolve document link", "target", targetID, "error", err)
			doc = nil
		}
	}
	if doc == nil {
		l.Status, l.Label = StatusBroken, BrokenLabel
	} else {
		l.Status = StatusResolved
		l.Label = firstNonBlank(doc.Title, displayTitle, text, targetID)
	}
	metrics.LinkResolutions.WithLabelValues(l.Status.String()).Inc()
	return l
}

func firstNonBlank(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// RenderOptions controls the anchors produced by RenderHTML.
type RenderOptions struct {
	// Origin is the id of the document being displayed; it is carried as
	// ?from= on resolved anchors.
	Origin string
}

// RenderHTML resolves every document link in src. Subtrees that are active
// editing surfaces (contenteditable or data-editor-id) are left untouched.
func (r *Resolver) RenderHTML(ctx context.Context, src string, opts RenderOptions) (string, []Link, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(src), root)
	if err != nil {
		return "", nil, err
	}
	cache := map[string]*Link{}
	var links []Link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if isEditingSurface(n) {
			return
		}
		if id, ok := getAttr(n, "data-document-id"); ok {
			l := r.resolveCached(ctx, cache, id, attrOr(n, "data-document-title"), textContent(n))
			l.Index = len(links)
			links = append(links, l)
			r.decorate(n, l, opts)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	var b strings.Builder
	for _, n := range nodes {
		walk(n)
		if err := html.Render(&b, n); err != nil {
			return "", nil, err
		}
	}
	return b.String(), links, nil
}

func (r *Resolver) resolveCached(ctx context.Context, cache map[string]*Link, id, title, text string) Link {
	if c, ok := cache[id]; ok && c.DisplayTitle == title && c.Text == text {
		return *c
	}
	l := r.Resolve(ctx, id, title, text)
	cache[id] = &l
	return l
}

// decorate rewrites n in place: an anchor for a live target, a span with the
// fallback label otherwise.
func (r *Resolver) decorate(n *html.Node, l Link, opts RenderOptions) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: l.Label})
	attrs := []html.Attribute{
		{Key: "class", Val: ClassLink + " " + ClassBroken},
		{Key: "data-document-id", Val: l.TargetID},
		{Key: "data-link-index", Val: strconv.Itoa(l.Index)},
	}
	if l.DisplayTitle != "" {
		attrs = append(attrs, html.Attribute{Key: "data-document-title", Val: l.DisplayTitle})
	}
	if !l.Navigable() {
		n.Data, n.DataAtom, n.Attr = "span", atom.Span, attrs
		return
	}
	attrs[0].Val = ClassLink + " " + ClassResolved
	href := strings.Replace(r.ViewPath, "%s", url.PathEscape(l.TargetID), 1)
	if opts.Origin != "" {
		href += "?from=" + url.QueryEscape(opts.Origin)
	}
	n.Data, n.DataAtom = "a", atom.A
	n.Attr = append([]html.Attribute{{Key: "href", Val: href}}, attrs...)
}

func isEditingSurface(n *html.Node) bool {
	if v, ok := getAttr(n, "contenteditable"); ok && v != "false" {
		return true
	}
	_, ok := getAttr(n, "data-editor-id")
	return ok
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(b.String())
}
