package content

import (
	"strconv"
	"strings"
)

// Selection is a range of positions; From == To is a collapsed cursor.
type Selection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func Cursor(pos int) Selection { return Selection{From: pos, To: pos} }

func (s Selection) Empty() bool { return s.From == s.To }

func (s Selection) ordered() Selection {
	if s.From > s.To {
		return Selection{From: s.To, To: s.From}
	}
	return s
}

// Clamp fits the selection inside a document of n positions.
func (s Selection) Clamp(n int) Selection {
	c := func(p int) int {
		if p < 0 {
			return 0
		}
		if p > n {
			return n
		}
		return p
	}
	return Selection{From: c(s.From), To: c(s.To)}.ordered()
}

// State is one version of an editing surface. StoredMarks, when non-nil,
// replaces inherited marks for the next inserted text.
type State struct {
	Doc         *Node
	Sel         Selection
	StoredMarks []Mark
}

// Command produces the next state. ok=false means the command did not apply
// and the input state is returned untouched.
type Command func(s State) (next State, ok bool)

func (s State) clone() State {
	c := State{Doc: s.Doc.Clone(), Sel: s.Sel.Clamp(Len(s.Doc))}
	if s.StoredMarks != nil {
		c.StoredMarks = cloneMarks(s.StoredMarks)
	}
	return c
}

// forRange splits runs at the range edges and calls fn for every text run
// inside [from, to). It reports whether any text was visited.
func forRange(doc *Node, from, to int, fn func(n *Node)) bool {
	visited := false
	for _, b := range collectTextblocks(doc) {
		a, z := max(from, b.start)-b.start, min(to, b.end())-b.start
		if a >= z {
			continue
		}
		inl, i := splitInline(b.node.Content, a)
		inl, j := splitInline(inl, z)
		for _, n := range inl[i:j] {
			if n.Type == NodeText {
				fn(n)
				visited = true
			}
		}
		b.node.Content = inl
	}
	return visited
}

func mergeAll(doc *Node) {
	for _, b := range collectTextblocks(doc) {
		b.node.Content = mergeText(b.node.Content)
	}
}

// ToggleMark adds m over the selection, or removes it when every selected
// character already has it. On a collapsed cursor it toggles the stored marks.
func ToggleMark(m Mark) Command {
	return func(s State) (State, bool) {
		next := s.clone()
		sel := next.Sel
		if sel.Empty() {
			base := next.StoredMarks
			if base == nil {
				blocks := collectTextblocks(next.Doc)
				i := locate(blocks, sel.From)
				if i < 0 {
					return s, false
				}
				base = marksBefore(blocks[i].node.Content, sel.From-blocks[i].start)
			}
			if hasMarkType(base, m.Type) {
				next.StoredMarks = removeMark(base, m.Type)
				if next.StoredMarks == nil {
					next.StoredMarks = []Mark{}
				}
			} else {
				next.StoredMarks = addMark(base, m)
			}
			return next, true
		}
		all := true
		if !forRange(next.Doc, sel.From, sel.To, func(n *Node) {
			if !n.HasMark(m.Type) {
				all = false
			}
		}) {
			return s, false
		}
		forRange(next.Doc, sel.From, sel.To, func(n *Node) {
			if all {
				n.Marks = removeMark(n.Marks, m.Type)
			} else {
				n.Marks = addMark(n.Marks, m)
			}
		})
		mergeAll(next.Doc)
		return next, true
	}
}

func hasMarkType(ms []Mark, t MarkType) bool {
	for _, m := range ms {
		if m.Type == t {
			return true
		}
	}
	return false
}

// markExtent finds the contiguous run around pos carrying a mark of type t.
func markExtent(doc *Node, pos int, t MarkType) (Selection, bool) {
	blocks := collectTextblocks(doc)
	bi := locate(blocks, pos)
	if bi < 0 {
		return Selection{}, false
	}
	b := blocks[bi]
	off := pos - b.start
	type run struct{ a, z int }
	var runs []run
	p := 0
	for _, n := range b.node.Content {
		size := n.Size()
		if n.Type == NodeText && n.HasMark(t) {
			if len(runs) > 0 && runs[len(runs)-1].z == p {
				runs[len(runs)-1].z = p + size
			} else {
				runs = append(runs, run{p, p + size})
			}
		}
		p += size
	}
	for _, r := range runs {
		if off >= r.a && off <= r.z {
			return Selection{From: b.start + r.a, To: b.start + r.z}, true
		}
	}
	return Selection{}, false
}

// SetLink applies a hyperlink to the selection, or retargets the link under a
// collapsed cursor.
func SetLink(href string) Command {
	href = strings.TrimSpace(href)
	return func(s State) (State, bool) {
		if href == "" {
			return s, false
		}
		next := s.clone()
		rng := next.Sel
		if rng.Empty() {
			ext, ok := markExtent(next.Doc, rng.From, MarkLink)
			if !ok {
				return s, false
			}
			rng = ext
		}
		if !forRange(next.Doc, rng.From, rng.To, func(n *Node) { n.Marks = addMark(n.Marks, Link(href)) }) {
			return s, false
		}
		mergeAll(next.Doc)
		return next, true
	}
}

// UnsetLink removes hyperlinks from the selection or from the link under the cursor.
func UnsetLink() Command {
	return func(s State) (State, bool) {
		next := s.clone()
		rng := next.Sel
		if rng.Empty() {
			ext, ok := markExtent(next.Doc, rng.From, MarkLink)
			if !ok {
				return s, false
			}
			rng = ext
		}
		changed := false
		forRange(next.Doc, rng.From, rng.To, func(n *Node) {
			if n.HasMark(MarkLink) {
				n.Marks = removeMark(n.Marks, MarkLink)
				changed = true
			}
		})
		if !changed {
			return s, false
		}
		mergeAll(next.Doc)
		return next, true
	}
}

// setBlocks rewrites every paragraph/heading touched by the selection.
func setBlocks(s State, fn func(n *Node) bool) (State, bool) {
	next := s.clone()
	blocks := collectTextblocks(next.Doc)
	changed := false
	for _, i := range blocksIn(blocks, next.Sel.From, next.Sel.To) {
		n := blocks[i].node
		if n.Type != NodeParagraph && n.Type != NodeHeading {
			continue
		}
		if fn(n) {
			changed = true
		}
	}
	if !changed {
		return s, false
	}
	return next, true
}

func SetHeading(level int) Command {
	return func(s State) (State, bool) {
		if level < 1 || level > 3 {
			return s, false
		}
		return setBlocks(s, func(n *Node) bool {
			n.Type = NodeHeading
			n.SetAttr(AttrLevel, strconv.Itoa(level))
			return true
		})
	}
}

func SetParagraph() Command {
	return func(s State) (State, bool) {
		return setBlocks(s, func(n *Node) bool {
			n.Type = NodeParagraph
			delete(n.Attrs, AttrLevel)
			return true
		})
	}
}

// ToggleHeading turns the touched blocks into headings of level, or back into
// paragraphs when they all already are.
func ToggleHeading(level int) Command {
	return func(s State) (State, bool) {
		blocks := collectTextblocks(s.Doc)
		all, some := true, false
		for _, i := range blocksIn(blocks, s.Sel.From, s.Sel.To) {
			n := blocks[i].node
			if n.Type != NodeParagraph && n.Type != NodeHeading {
				continue
			}
			some = true
			if n.Type != NodeHeading || n.Attr(AttrLevel) != strconv.Itoa(level) {
				all = false
			}
		}
		if !some {
			return s, false
		}
		if all {
			return SetParagraph()(s)
		}
		return SetHeading(level)(s)
	}
}

// SetTextAlign aligns the touched paragraphs and headings; left is the default
// and is stored as no attribute.
func SetTextAlign(align string) Command {
	return func(s State) (State, bool) {
		switch align {
		case AlignLeft:
			align = ""
		case AlignCenter, AlignRight, "justify":
		default:
			return s, false
		}
		return setBlocks(s, func(n *Node) bool {
			n.SetAttr(AttrTextAlign, align)
			return true
		})
	}
}

func itemType(list NodeType) NodeType {
	if list == NodeTaskList {
		return NodeTaskItem
	}
	return NodeListItem
}

func convertItem(item *Node, list NodeType) *Node {
	if item.Type == itemType(list) {
		return item
	}
	if list == NodeTaskList {
		return NewTaskItem(false, item.Content...)
	}
	return NewListItem(item.Content...)
}

// selectedTops returns the sorted top-level block indexes the selection touches.
func selectedTops(doc *Node, sel Selection) []int {
	blocks := collectTextblocks(doc)
	seen := map[int]bool{}
	var out []int
	for _, i := range blocksIn(blocks, sel.From, sel.To) {
		t := blocks[i].top(doc)
		if t >= 0 && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ToggleList wraps the touched top-level blocks in a list of type t, converts
// other lists to t, or unwraps when every touched block already is a t list.
func ToggleList(t NodeType) Command {
	return func(s State) (State, bool) {
		next := s.clone()
		doc := next.Doc
		tops := selectedTops(doc, next.Sel)
		if len(tops) == 0 {
			return s, false
		}
		selected := map[int]bool{}
		unwrap := true
		for _, i := range tops {
			selected[i] = true
			if doc.Content[i].Type != t {
				unwrap = false
			}
		}
		var out []*Node
		if unwrap {
			for i, n := range doc.Content {
				if !selected[i] {
					out = append(out, n)
					continue
				}
				for _, item := range n.Content {
					out = append(out, item.Content...)
				}
			}
			doc.Content = out
			return next, true
		}
		var group *Node
		changed := false
		for i, n := range doc.Content {
			if !selected[i] {
				group = nil
				out = append(out, n)
				continue
			}
			switch {
			case n.Type == NodeParagraph || n.Type == NodeHeading:
				if group == nil {
					group = NewList(t)
					out = append(out, group)
				}
				item := NewListItem(n)
				if t == NodeTaskList {
					item = NewTaskItem(false, n)
				}
				group.Content = append(group.Content, item)
				changed = true
			case n.IsList():
				if group == nil {
					group = NewList(t)
					if n.Type == NodeOrderedList && t == NodeOrderedList {
						group.Attrs = n.Attrs
					}
					out = append(out, group)
				}
				for _, item := range n.Content {
					group.Content = append(group.Content, convertItem(item, t))
				}
				changed = true
			default:
				group = nil
				out = append(out, n)
			}
		}
		if !changed {
			return s, false
		}
		doc.Content = out
		return next, true
	}
}

// ToggleTaskChecked flips the task item around the cursor.
func ToggleTaskChecked() Command {
	return func(s State) (State, bool) {
		next := s.clone()
		blocks := collectTextblocks(next.Doc)
		i := locate(blocks, next.Sel.From)
		if i < 0 {
			return s, false
		}
		anc := blocks[i].ancestors
		for j := len(anc) - 1; j >= 0; j-- {
			if anc[j].Type == NodeTaskItem {
				anc[j].SetAttr(AttrChecked, strconv.FormatBool(anc[j].Attr(AttrChecked) != "true"))
				return next, true
			}
		}
		return s, false
	}
}

// deleteSelection removes the selected content in place and collapses the
// selection. Blocks that share a parent are joined; otherwise only their text
// is removed.
func deleteSelection(st *State) {
	sel := st.Sel
	if sel.Empty() {
		return
	}
	blocks := collectTextblocks(st.Doc)
	fi, li := locate(blocks, sel.From), locate(blocks, sel.To)
	if fi < 0 || li < 0 {
		return
	}
	first, last := blocks[fi], blocks[li]
	a, z := sel.From-first.start, sel.To-last.start
	if fi == li {
		first.node.Content = cutInline(first.node.Content, a, z)
	} else if first.parent() == last.parent() {
		tail := cutInline(last.node.Content, 0, z)
		first.node.Content = mergeText(append(cutInline(first.node.Content, a, first.size), tail...))
		p := first.parent()
		p.Content = append(p.Content[:first.index+1], p.Content[last.index+1:]...)
	} else {
		first.node.Content = cutInline(first.node.Content, a, first.size)
		for _, b := range blocks[fi+1 : li] {
			b.node.Content = nil
		}
		last.node.Content = cutInline(last.node.Content, 0, z)
	}
	st.Sel = Cursor(sel.From)
}

// DeleteSelection removes the selected content.
func DeleteSelection() Command {
	return func(s State) (State, bool) {
		if s.Sel.Empty() {
			return s, false
		}
		next := s.clone()
		deleteSelection(&next)
		return next, true
	}
}

// InsertText replaces the selection with text. Newlines become hard breaks
// outside code blocks.
func InsertText(text string) Command {
	return func(s State) (State, bool) {
		if text == "" {
			return s, false
		}
		next := s.clone()
		deleteSelection(&next)
		blocks := collectTextblocks(next.Doc)
		i := locate(blocks, next.Sel.From)
		if i < 0 {
			return s, false
		}
		b := blocks[i]
		off := next.Sel.From - b.start
		var nodes []*Node
		if b.node.Type == NodeCodeBlock {
			nodes = []*Node{{Type: NodeText, Text: text}}
		} else {
			marks := next.StoredMarks
			if marks == nil {
				marks = marksBefore(b.node.Content, off)
			}
			for j, line := range strings.Split(text, "\n") {
				if j > 0 {
					nodes = append(nodes, NewHardBreak())
				}
				if line != "" {
					nodes = append(nodes, &Node{Type: NodeText, Text: line, Marks: cloneOrNil(marks)})
				}
			}
		}
		b.node.Content = insertInline(b.node.Content, off, nodes...)
		next.Sel = Cursor(next.Sel.From + inlineSize(nodes))
		next.StoredMarks = nil
		return next, true
	}
}

// InsertDocumentLink replaces the selection with the target title carrying a
// document-link mark.
func InsertDocumentLink(targetID, displayTitle string) Command {
	return func(s State) (State, bool) {
		if strings.TrimSpace(targetID) == "" {
			return s, false
		}
		label := displayTitle
		if strings.TrimSpace(label) == "" {
			label = targetID
		}
		next := s.clone()
		deleteSelection(&next)
		blocks := collectTextblocks(next.Doc)
		i := locate(blocks, next.Sel.From)
		if i < 0 || blocks[i].node.Type == NodeCodeBlock {
			return s, false
		}
		b := blocks[i]
		n := NewText(label, DocumentLink(targetID, displayTitle))
		b.node.Content = insertInline(b.node.Content, next.Sel.From-b.start, n)
		next.Sel = Cursor(next.Sel.From + n.Size())
		next.StoredMarks = nil
		return next, true
	}
}

// SplitBlock breaks the block at the cursor in two (Enter). Inside a list item
// the item is split.
func SplitBlock() Command {
	return func(s State) (State, bool) {
		next := s.clone()
		deleteSelection(&next)
		blocks := collectTextblocks(next.Doc)
		i := locate(blocks, next.Sel.From)
		if i < 0 {
			return s, false
		}
		b := blocks[i]
		off := next.Sel.From - b.start
		if b.node.Type == NodeCodeBlock {
			b.node.Content = insertInline(b.node.Content, off, &Node{Type: NodeText, Text: "\n"})
			next.Sel = Cursor(next.Sel.From + 1)
			return next, true
		}
		inl, cut := splitInline(b.node.Content, off)
		left, right := mergeText(append([]*Node(nil), inl[:cut]...)), mergeText(append([]*Node(nil), inl[cut:]...))
		b.node.Content = left
		tail := &Node{Type: b.node.Type, Content: right}
		for k, v := range b.node.Attrs {
			tail.SetAttr(k, v)
		}
		if b.node.Type == NodeHeading && len(right) == 0 {
			tail = &Node{Type: NodeParagraph}
		}
		parent := b.parent()
		if (parent.Type == NodeListItem || parent.Type == NodeTaskItem) && len(b.ancestors) >= 2 {
			list := b.ancestors[len(b.ancestors)-2]
			item := &Node{Type: parent.Type}
			if parent.Type == NodeTaskItem {
				item.SetAttr(AttrChecked, "false")
			}
			item.Content = append([]*Node{tail}, parent.Content[b.index+1:]...)
			parent.Content = parent.Content[:b.index+1]
			for j, it := range list.Content {
				if it == parent {
					list.Content = append(list.Content[:j+1], append([]*Node{item}, list.Content[j+1:]...)...)
					break
				}
			}
		} else {
			parent.Content = append(parent.Content[:b.index+1], append([]*Node{tail}, parent.Content[b.index+1:]...)...)
		}
		next.Sel = Cursor(next.Sel.From + 1)
		return next, true
	}
}

// insertBlock places block at the cursor. A top-level paragraph is split
// around it; anywhere else the block goes after the top-level ancestor.
func insertBlock(s State, block *Node) (State, bool) {
	next := s.clone()
	deleteSelection(&next)
	doc := next.Doc
	blocks := collectTextblocks(doc)
	i := locate(blocks, next.Sel.From)
	if i < 0 {
		doc.Content = append(doc.Content, block, NewParagraph())
		return next, true
	}
	b := blocks[i]
	top := b.top(doc)
	var replacement []*Node
	var after *Node
	if len(b.ancestors) == 1 && b.node.Type == NodeParagraph {
		inl, cut := splitInline(b.node.Content, next.Sel.From-b.start)
		before := mergeText(append([]*Node(nil), inl[:cut]...))
		after = &Node{Type: NodeParagraph, Content: mergeText(append([]*Node(nil), inl[cut:]...))}
		for k, v := range b.node.Attrs {
			after.SetAttr(k, v)
		}
		if len(before) > 0 {
			b.node.Content = before
			replacement = append(replacement, b.node)
		}
		replacement = append(replacement, block, after)
	} else {
		replacement = []*Node{doc.Content[top], block}
		if top == len(doc.Content)-1 {
			after = NewParagraph()
			replacement = append(replacement, after)
		}
	}
	rest := append([]*Node(nil), doc.Content[top+1:]...)
	doc.Content = append(append(doc.Content[:top], replacement...), rest...)
	if after != nil {
		if p, ok := positionOf(doc, after); ok {
			next.Sel = Cursor(p)
		}
	}
	next.Sel = next.Sel.Clamp(Len(doc))
	return next, true
}

// InsertImage embeds an image at the cursor.
func InsertImage(src, align string, width, height int) Command {
	return func(s State) (State, bool) {
		if strings.TrimSpace(src) == "" {
			return s, false
		}
		return insertBlock(s, NewImage(src, align, width, height))
	}
}

func InsertHorizontalRule() Command {
	return func(s State) (State, bool) {
		return insertBlock(s, NewHorizontalRule())
	}
}

// InsertTable adds a rows x cols table at the cursor; with headerRow the first
// row uses header cells. The cursor moves into the first cell.
func InsertTable(rows, cols int, headerRow bool) Command {
	return func(s State) (State, bool) {
		if rows < 1 || cols < 1 {
			return s, false
		}
		table := &Node{Type: NodeTable}
		for r := 0; r < rows; r++ {
			row := &Node{Type: NodeTableRow}
			cellType := NodeTableCell
			if r == 0 && headerRow {
				cellType = NodeTableHeader
			}
			for c := 0; c < cols; c++ {
				row.Content = append(row.Content, &Node{Type: cellType, Content: []*Node{NewParagraph()}})
			}
			table.Content = append(table.Content, row)
		}
		next, ok := s, false
		// an empty top-level paragraph under the cursor is replaced outright
		blocks := collectTextblocks(s.Doc)
		if i := locate(blocks, s.Sel.From); i >= 0 && s.Sel.Empty() && len(blocks[i].ancestors) == 1 &&
			blocks[i].node.Type == NodeParagraph && blocks[i].size == 0 {
			next = s.clone()
			top := blocks[i].index
			rest := append([]*Node(nil), next.Doc.Content[top+1:]...)
			next.Doc.Content = append(append(next.Doc.Content[:top], table), rest...)
			if len(rest) == 0 {
				next.Doc.Content = append(next.Doc.Content, NewParagraph())
			}
			ok = true
		} else {
			next, ok = insertBlock(s, table)
		}
		if !ok {
			return s, false
		}
		if p, found := positionOf(next.Doc, table.Content[0].Content[0].Content[0]); found {
			next.Sel = Cursor(p)
		}
		return next, true
	}
}

// Images lists image nodes in document order; their index addresses them in
// SetImageSize and SetImageAlign.
func Images(doc *Node) []*Node {
	var out []*Node
	doc.Walk(func(n *Node) bool {
		if n.Type == NodeImage {
			out = append(out, n)
		}
		return !n.IsInline()
	})
	return out
}

func SetImageSize(index, width, height int) Command {
	return func(s State) (State, bool) {
		if width < 1 || height < 1 {
			return s, false
		}
		next := s.clone()
		imgs := Images(next.Doc)
		if index < 0 || index >= len(imgs) {
			return s, false
		}
		imgs[index].SetAttr(AttrWidth, strconv.Itoa(width))
		imgs[index].SetAttr(AttrHeight, strconv.Itoa(height))
		return next, true
	}
}

// SetImageAlign accepts left, center, right, or "" to unset.
func SetImageAlign(index int, align string) Command {
	return func(s State) (State, bool) {
		if align != "" && normalizeImageAlign(align) == "" {
			return s, false
		}
		next := s.clone()
		imgs := Images(next.Doc)
		if index < 0 || index >= len(imgs) {
			return s, false
		}
		imgs[index].SetAttr(AttrAlign, align)
		return next, true
	}
}
