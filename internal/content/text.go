package content

import (
	"strings"
	"unicode/utf8"
)

// Positions are flat text offsets: every rune of text and every hard break
// counts one, and consecutive textblocks are separated by one position. A
// position equal to a block's end belongs to that block, so PlainText and
// positions line up rune for rune.

// blockRef locates a textblock inside a tree.
type blockRef struct {
	node      *Node
	start     int
	size      int
	ancestors []*Node // doc first, direct parent last
	index     int     // index within direct parent
}

func (b blockRef) parent() *Node { return b.ancestors[len(b.ancestors)-1] }

// top is the index of the block's top-level ancestor within doc.Content.
func (b blockRef) top(doc *Node) int {
	target := b.node
	if len(b.ancestors) > 1 {
		target = b.ancestors[1]
	}
	for i, n := range doc.Content {
		if n == target {
			return i
		}
	}
	return -1
}

func (b blockRef) end() int { return b.start + b.size }

func inlineSize(inl []*Node) int {
	n := 0
	for _, ch := range inl {
		n += ch.Size()
	}
	return n
}

func collectTextblocks(doc *Node) []blockRef {
	var out []blockRef
	pos := 0
	var walk func(n *Node, ancestors []*Node)
	walk = func(n *Node, ancestors []*Node) {
		for i, ch := range n.Content {
			if ch.IsTextblock() {
				if len(out) > 0 {
					pos++
				}
				anc := make([]*Node, len(ancestors)+1)
				copy(anc, ancestors)
				anc[len(ancestors)] = n
				size := inlineSize(ch.Content)
				out = append(out, blockRef{node: ch, start: pos, size: size, ancestors: anc, index: i})
				pos += size
				continue
			}
			if !ch.IsInline() {
				walk(ch, append(ancestors, n))
			}
		}
	}
	walk(doc, nil)
	return out
}

// Len is the number of positions in doc.
func Len(doc *Node) int {
	blocks := collectTextblocks(doc)
	if len(blocks) == 0 {
		return 0
	}
	return blocks[len(blocks)-1].end()
}

// locate returns the index of the textblock holding pos, or -1.
func locate(blocks []blockRef, pos int) int {
	for i, b := range blocks {
		if pos >= b.start && pos <= b.end() {
			return i
		}
	}
	return -1
}

// blocksIn lists the indexes of textblocks touched by [from, to].
func blocksIn(blocks []blockRef, from, to int) []int {
	var out []int
	for i, b := range blocks {
		if b.start <= to && b.end() >= from {
			out = append(out, i)
		}
	}
	return out
}

func positionOf(doc *Node, target *Node) (int, bool) {
	for _, b := range collectTextblocks(doc) {
		if b.node == target {
			return b.start, true
		}
	}
	return 0, false
}

// PlainText flattens doc: textblocks joined by newlines, hard breaks as newlines.
func PlainText(doc *Node) string {
	blocks := collectTextblocks(doc)
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = inlineText(b.node.Content)
	}
	return strings.Join(parts, "\n")
}

// PlainTextOf parses serialized content and flattens it; unparseable input
// yields "".
func PlainTextOf(serialized string) string {
	doc, err := Parse(serialized)
	if err != nil {
		return ""
	}
	return PlainText(doc)
}

func inlineText(inl []*Node) string {
	var b strings.Builder
	for _, n := range inl {
		switch n.Type {
		case NodeText:
			b.WriteString(n.Text)
		case NodeHardBreak:
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// splitInline splits the text run spanning off so that a run boundary falls
// exactly on off. The returned index is the first node at or after off.
func splitInline(inl []*Node, off int) ([]*Node, int) {
	pos := 0
	for i, n := range inl {
		size := n.Size()
		if off == pos {
			return inl, i
		}
		if off < pos+size && n.Type == NodeText {
			cut := off - pos
			runes := []rune(n.Text)
			left := &Node{Type: NodeText, Text: string(runes[:cut]), Marks: cloneOrNil(n.Marks)}
			right := &Node{Type: NodeText, Text: string(runes[cut:]), Marks: cloneOrNil(n.Marks)}
			out := make([]*Node, 0, len(inl)+1)
			out = append(out, inl[:i]...)
			out = append(out, left, right)
			out = append(out, inl[i+1:]...)
			return out, i + 1
		}
		pos += size
	}
	return inl, len(inl)
}

// cutInline removes [a, b) from an inline run.
func cutInline(inl []*Node, a, b int) []*Node {
	inl, i := splitInline(inl, a)
	inl, j := splitInline(inl, b)
	out := make([]*Node, 0, len(inl)-(j-i))
	out = append(out, inl[:i]...)
	out = append(out, inl[j:]...)
	return mergeText(out)
}

// insertInline places nodes at off.
func insertInline(inl []*Node, off int, nodes ...*Node) []*Node {
	inl, i := splitInline(inl, off)
	out := make([]*Node, 0, len(inl)+len(nodes))
	out = append(out, inl[:i]...)
	out = append(out, nodes...)
	out = append(out, inl[i:]...)
	return mergeText(out)
}

// marksBefore returns the marks a character typed at off would inherit.
// Link-like marks do not extend past their end.
func marksBefore(inl []*Node, off int) []Mark {
	pos := 0
	var prev, next *Node
	for _, n := range inl {
		size := n.Size()
		if pos < off && off <= pos+size {
			prev = n
		}
		if next == nil && off >= pos && off < pos+size {
			next = n
		}
		pos += size
	}
	src := prev
	if src == nil {
		src = next
	}
	if src == nil || src.Type != NodeText {
		return nil
	}
	out := removeMark(cloneOrNil(src.Marks), MarkLink)
	return removeMark(out, MarkDocumentLink)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
