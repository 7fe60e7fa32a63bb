// Package content is the structured rich-text engine: a typed block/mark tree,
// its HTML codec, pure editing commands and the editor surface that runs them.
package content

import (
	"sort"
	"strconv"
	"unicode/utf8"
)

type NodeType string

const (
	NodeDoc            NodeType = "doc"
	NodeParagraph      NodeType = "paragraph"
	NodeHeading        NodeType = "heading"
	NodeBulletList     NodeType = "bulletList"
	NodeOrderedList    NodeType = "orderedList"
	NodeListItem       NodeType = "listItem"
	NodeTaskList       NodeType = "taskList"
	NodeTaskItem       NodeType = "taskItem"
	NodeTable          NodeType = "table"
	NodeTableRow       NodeType = "tableRow"
	NodeTableHeader    NodeType = "tableHeader"
	NodeTableCell      NodeType = "tableCell"
	NodeImage          NodeType = "image"
	NodeBlockquote     NodeType = "blockquote"
	NodeCodeBlock      NodeType = "codeBlock"
	NodeHorizontalRule NodeType = "horizontalRule"
	NodeHardBreak      NodeType = "hardBreak"
	NodeText           NodeType = "text"
)

type MarkType string

const (
	MarkDocumentLink MarkType = "documentLink"
	MarkLink         MarkType = "link"
	MarkBold         MarkType = "bold"
	MarkItalic       MarkType = "italic"
	MarkUnderline    MarkType = "underline"
	MarkStrike       MarkType = "strike"
	MarkCode         MarkType = "code"
)

// markRank is the canonical mark order, outermost first.
var markRank = map[MarkType]int{
	MarkDocumentLink: 0,
	MarkLink:         1,
	MarkBold:         2,
	MarkItalic:       3,
	MarkUnderline:    4,
	MarkStrike:       5,
	MarkCode:         6,
}

// Attribute keys.
const (
	AttrLevel         = "level"
	AttrTextAlign     = "textAlign"
	AttrChecked       = "checked"
	AttrStart         = "start"
	AttrSrc           = "src"
	AttrAlt           = "alt"
	AttrWidth         = "width"
	AttrHeight        = "height"
	AttrAlign         = "align"
	AttrHref          = "href"
	AttrDocumentID    = "documentId"
	AttrDocumentTitle = "documentTitle"
)

// Mark is an inline annotation on a text run.
type Mark struct {
	Type  MarkType          `json:"type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func (m Mark) Attr(key string) string { return m.Attrs[key] }

// Equal compares type and attributes.
func (m Mark) Equal(o Mark) bool {
	if m.Type != o.Type || len(m.Attrs) != len(o.Attrs) {
		return false
	}
	for k, v := range m.Attrs {
		if o.Attrs[k] != v {
			return false
		}
	}
	return true
}

// Node is one element of the content tree. Text nodes carry Text and Marks;
// every other node carries Attrs and Content.
type Node struct {
	Type    NodeType          `json:"type"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Content []*Node           `json:"content,omitempty"`
	Text    string            `json:"text,omitempty"`
	Marks   []Mark            `json:"marks,omitempty"`
}

func (n *Node) Attr(key string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[key]
}

// IntAttr parses an integer attribute; ok is false when unset or invalid.
func (n *Node) IntAttr(key string) (int, bool) {
	v, err := strconv.Atoi(n.Attr(key))
	if err != nil {
		return 0, false
	}
	return v, true
}

func (n *Node) SetAttr(key, value string) {
	if value == "" {
		delete(n.Attrs, key)
		return
	}
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[key] = value
}

// IsTextblock reports nodes whose children are inline content.
func (n *Node) IsTextblock() bool {
	switch n.Type {
	case NodeParagraph, NodeHeading, NodeCodeBlock:
		return true
	}
	return false
}

func (n *Node) IsInline() bool {
	return n.Type == NodeText || n.Type == NodeHardBreak
}

func (n *Node) IsList() bool {
	switch n.Type {
	case NodeBulletList, NodeOrderedList, NodeTaskList:
		return true
	}
	return false
}

// Size is the node's length in text positions (see Pos).
func (n *Node) Size() int {
	switch n.Type {
	case NodeText:
		return utf8.RuneCountInString(n.Text)
	case NodeHardBreak:
		return 1
	}
	return 0
}

// HasMark reports whether a text node carries a mark of type t.
func (n *Node) HasMark(t MarkType) bool {
	_, ok := n.Mark(t)
	return ok
}

func (n *Node) Mark(t MarkType) (Mark, bool) {
	for _, m := range n.Marks {
		if m.Type == t {
			return m, true
		}
	}
	return Mark{}, false
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		c.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	if n.Marks != nil {
		c.Marks = cloneMarks(n.Marks)
	}
	if n.Content != nil {
		c.Content = make([]*Node, len(n.Content))
		for i, ch := range n.Content {
			c.Content[i] = ch.Clone()
		}
	}
	return c
}

// Equal is a deep structural comparison.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Type != o.Type || n.Text != o.Text || len(n.Attrs) != len(o.Attrs) ||
		len(n.Marks) != len(o.Marks) || len(n.Content) != len(o.Content) {
		return false
	}
	for k, v := range n.Attrs {
		if o.Attrs[k] != v {
			return false
		}
	}
	for i := range n.Marks {
		if !n.Marks[i].Equal(o.Marks[i]) {
			return false
		}
	}
	for i := range n.Content {
		if !n.Content[i].Equal(o.Content[i]) {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants depth-first; returning false skips children.
func (n *Node) Walk(fn func(node *Node) bool) {
	if !fn(n) {
		return
	}
	for _, ch := range n.Content {
		ch.Walk(fn)
	}
}

func cloneMarks(ms []Mark) []Mark {
	out := make([]Mark, len(ms))
	for i, m := range ms {
		out[i] = Mark{Type: m.Type}
		if m.Attrs != nil {
			out[i].Attrs = make(map[string]string, len(m.Attrs))
			for k, v := range m.Attrs {
				out[i].Attrs[k] = v
			}
		}
	}
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// normalizeMarks sorts into canonical order keeping one mark per type.
func normalizeMarks(ms []Mark) []Mark {
	if len(ms) == 0 {
		return nil
	}
	seen := map[MarkType]bool{}
	out := make([]Mark, 0, len(ms))
	for _, m := range ms {
		if _, known := markRank[m.Type]; !known || seen[m.Type] {
			continue
		}
		seen[m.Type] = true
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return markRank[out[i].Type] < markRank[out[j].Type] })
	return out
}

func addMark(ms []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(ms)+1)
	for _, x := range ms {
		if x.Type != m.Type {
			out = append(out, x)
		}
	}
	return normalizeMarks(append(out, m))
}

func removeMark(ms []Mark, t MarkType) []Mark {
	out := make([]Mark, 0, len(ms))
	for _, x := range ms {
		if x.Type != t {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Constructors.

func NewDoc(blocks ...*Node) *Node {
	if len(blocks) == 0 {
		blocks = []*Node{NewParagraph()}
	}
	return &Node{Type: NodeDoc, Content: blocks}
}

func NewParagraph(inline ...*Node) *Node {
	return &Node{Type: NodeParagraph, Content: inline}
}

func NewHeading(level int, inline ...*Node) *Node {
	return &Node{Type: NodeHeading, Attrs: map[string]string{AttrLevel: strconv.Itoa(clampLevel(level))}, Content: inline}
}

func NewText(text string, marks ...Mark) *Node {
	return &Node{Type: NodeText, Text: text, Marks: normalizeMarks(marks)}
}

func NewHardBreak() *Node { return &Node{Type: NodeHardBreak} }

func NewImage(src, align string, width, height int) *Node {
	n := &Node{Type: NodeImage}
	n.SetAttr(AttrSrc, src)
	n.SetAttr(AttrAlign, normalizeImageAlign(align))
	if width > 0 {
		n.SetAttr(AttrWidth, strconv.Itoa(width))
	}
	if height > 0 {
		n.SetAttr(AttrHeight, strconv.Itoa(height))
	}
	return n
}

func NewList(t NodeType, items ...*Node) *Node {
	return &Node{Type: t, Content: items}
}

func NewListItem(blocks ...*Node) *Node {
	return &Node{Type: NodeListItem, Content: blocks}
}

func NewTaskItem(checked bool, blocks ...*Node) *Node {
	n := &Node{Type: NodeTaskItem, Content: blocks}
	n.SetAttr(AttrChecked, strconv.FormatBool(checked))
	return n
}

func NewHorizontalRule() *Node { return &Node{Type: NodeHorizontalRule} }

// Bold, Italic... are mark shorthands.
func Bold() Mark      { return Mark{Type: MarkBold} }
func Italic() Mark    { return Mark{Type: MarkItalic} }
func Underline() Mark { return Mark{Type: MarkUnderline} }
func Strike() Mark    { return Mark{Type: MarkStrike} }
func Code() Mark      { return Mark{Type: MarkCode} }

func Link(href string) Mark {
	return Mark{Type: MarkLink, Attrs: map[string]string{AttrHref: href}}
}

func DocumentLink(documentID, title string) Mark {
	attrs := map[string]string{AttrDocumentID: documentID}
	if title != "" {
		attrs[AttrDocumentTitle] = title
	}
	return Mark{Type: MarkDocumentLink, Attrs: attrs}
}

func clampLevel(l int) int {
	if l < 1 {
		return 1
	}
	if l > 3 {
		return 3
	}
	return l
}

// Image alignments.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

func normalizeImageAlign(a string) string {
	switch a {
	case AlignLeft, AlignCenter, AlignRight:
		return a
	}
	return ""
}
