package content

import (
	"strconv"
	"strings"
)

// SplitAt cuts doc into two trees at pos. A top-level paragraph or heading
// holding pos is cut exactly; any other block is kept whole in the first half.
// ok is false when either half would be empty.
func SplitAt(doc *Node, pos int) (first, second *Node, ok bool) {
	doc = doc.Clone()
	blocks := collectTextblocks(doc)
	i := locate(blocks, pos)
	if i < 0 {
		return nil, nil, false
	}
	b := blocks[i]
	top := b.top(doc)
	var left, right []*Node
	if len(b.ancestors) == 1 && (b.node.Type == NodeParagraph || b.node.Type == NodeHeading) {
		inl, cut := splitInline(b.node.Content, pos-b.start)
		head := &Node{Type: b.node.Type, Content: mergeText(append([]*Node(nil), inl[:cut]...))}
		tail := &Node{Type: b.node.Type, Content: mergeText(append([]*Node(nil), inl[cut:]...))}
		for k, v := range b.node.Attrs {
			head.SetAttr(k, v)
			tail.SetAttr(k, v)
		}
		left = append(left, doc.Content[:top]...)
		if len(head.Content) > 0 {
			left = append(left, head)
		}
		if len(tail.Content) > 0 {
			right = append(right, tail)
		}
		right = append(right, doc.Content[top+1:]...)
	} else {
		left = append(left, doc.Content[:top+1]...)
		right = append(right, doc.Content[top+1:]...)
	}
	if !hasContent(left) || !hasContent(right) {
		return nil, nil, false
	}
	return NewDoc(left...), NewDoc(right...), true
}

// hasContent reports whether blocks hold text or any non-textblock node.
func hasContent(blocks []*Node) bool {
	for _, n := range blocks {
		if !n.IsTextblock() || len(n.Content) > 0 {
			return true
		}
	}
	return false
}

// IsEmpty reports whether doc has no text and no embedded nodes.
func IsEmpty(doc *Node) bool { return doc == nil || !hasContent(doc.Content) }

// JoinWithRule concatenates docs, separating each with a horizontal rule.
func JoinWithRule(docs ...*Node) *Node {
	var out []*Node
	for i, d := range docs {
		if i > 0 {
			out = append(out, NewHorizontalRule())
		}
		out = append(out, d.Clone().Content...)
	}
	return NewDoc(out...)
}

// HeadingChunk is a run of blocks introduced by a top-level heading.
type HeadingChunk struct {
	Title string
	Doc   *Node
}

// SplitByHeadings breaks doc at every top-level heading of level 1 or 2. Content
// before the first heading becomes an "Introduction" chunk when non-empty;
// untitled headings are named "Section N". Without headings the whole doc is a
// single "Main Content" chunk.
func SplitByHeadings(doc *Node) []HeadingChunk {
	doc = doc.Clone()
	var out []HeadingChunk
	var cur *Node
	var intro []*Node
	headings := 0
	for _, n := range doc.Content {
		if n.Type == NodeHeading {
			if lvl, _ := n.IntAttr(AttrLevel); lvl <= 2 {
				headings++
				title := strings.TrimSpace(inlineText(n.Content))
				if title == "" {
					title = "Section " + strconv.Itoa(headings)
				}
				cur = &Node{Type: NodeDoc}
				out = append(out, HeadingChunk{Title: title, Doc: cur})
			}
		}
		if cur == nil {
			intro = append(intro, n)
			continue
		}
		cur.Content = append(cur.Content, n)
	}
	if headings == 0 {
		return []HeadingChunk{{Title: "Main Content", Doc: NewDoc(intro...)}}
	}
	if hasContent(intro) {
		out = append([]HeadingChunk{{Title: "Introduction", Doc: NewDoc(intro...)}}, out...)
	}
	return out
}
