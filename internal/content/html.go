package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EmptyHTML is the serialized form of an empty section.
const EmptyHTML = "<p></p>"

// Serialize renders the tree as the stored HTML subset.
func Serialize(doc *Node) string {
	if doc == nil {
		return EmptyHTML
	}
	var b strings.Builder
	for _, ch := range doc.Content {
		writeBlock(&b, ch)
	}
	return b.String()
}

func writeBlock(b *strings.Builder, n *Node) {
	switch n.Type {
	case NodeParagraph:
		b.WriteString("<p" + alignStyle(n) + ">")
		writeInline(b, n.Content)
		b.WriteString("</p>")
	case NodeHeading:
		lvl, ok := n.IntAttr(AttrLevel)
		if !ok {
			lvl = 1
		}
		lvl = clampLevel(lvl)
		fmt.Fprintf(b, "<h%d%s>", lvl, alignStyle(n))
		writeInline(b, n.Content)
		fmt.Fprintf(b, "</h%d>", lvl)
	case NodeCodeBlock:
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(inlineText(n.Content)))
		b.WriteString("</code></pre>")
	case NodeBulletList:
		writeContainer(b, "<ul>", "</ul>", n)
	case NodeOrderedList:
		open := "<ol>"
		if s := n.Attr(AttrStart); s != "" && s != "1" {
			open = `<ol start="` + html.EscapeString(s) + `">`
		}
		writeContainer(b, open, "</ol>", n)
	case NodeTaskList:
		writeContainer(b, `<ul data-type="taskList">`, "</ul>", n)
	case NodeListItem:
		writeContainer(b, "<li>", "</li>", n)
	case NodeTaskItem:
		checked := n.Attr(AttrChecked) == "true"
		writeContainer(b, fmt.Sprintf(`<li data-type="taskItem" data-checked="%t">`, checked), "</li>", n)
	case NodeTable:
		writeContainer(b, "<table><tbody>", "</tbody></table>", n)
	case NodeTableRow:
		writeContainer(b, "<tr>", "</tr>", n)
	case NodeTableHeader:
		writeContainer(b, "<th>", "</th>", n)
	case NodeTableCell:
		writeContainer(b, "<td>", "</td>", n)
	case NodeBlockquote:
		writeContainer(b, "<blockquote>", "</blockquote>", n)
	case NodeImage:
		b.WriteString(`<img src="` + html.EscapeString(n.Attr(AttrSrc)) + `"`)
		for _, a := range [][2]string{{"alt", AttrAlt}, {"width", AttrWidth}, {"height", AttrHeight}, {"data-align", AttrAlign}} {
			if v := n.Attr(a[1]); v != "" {
				b.WriteString(" " + a[0] + `="` + html.EscapeString(v) + `"`)
			}
		}
		b.WriteString(">")
	case NodeHorizontalRule:
		b.WriteString("<hr>")
	}
}

func writeContainer(b *strings.Builder, open, close string, n *Node) {
	b.WriteString(open)
	for _, ch := range n.Content {
		writeBlock(b, ch)
	}
	b.WriteString(close)
}

func alignStyle(n *Node) string {
	if a := n.Attr(AttrTextAlign); a != "" {
		return ` style="text-align: ` + html.EscapeString(a) + `"`
	}
	return ""
}

// writeInline keeps marks shared by neighbouring runs open across them.
func writeInline(b *strings.Builder, inl []*Node) {
	var open []Mark
	afterSpace := true
	for i, n := range inl {
		marks := n.Marks
		keep := 0
		for keep < len(open) && keep < len(marks) && open[keep].Equal(marks[keep]) {
			keep++
		}
		for i := len(open) - 1; i >= keep; i-- {
			b.WriteString(closeTag(open[i]))
		}
		open = open[:keep]
		for _, m := range marks[keep:] {
			b.WriteString(openTag(m))
			open = append(open, m)
		}
		switch n.Type {
		case NodeText:
			afterSpace = writeText(b, n.Text, afterSpace, !textFollows(inl[i+1:]))
		case NodeHardBreak:
			b.WriteString("<br>")
			afterSpace = true
		}
	}
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString(closeTag(open[i]))
	}
}

// writeText escapes s and writes the spaces a parser would collapse or trim
// (leading, repeated, trailing) as &nbsp;. It reports whether s ended in a space.
func writeText(b *strings.Builder, s string, afterSpace, last bool) bool {
	for len(s) > 0 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			b.WriteString(html.EscapeString(s))
			return false
		}
		if i > 0 {
			b.WriteString(html.EscapeString(s[:i]))
			afterSpace = false
		}
		s = s[i+1:]
		if afterSpace || (last && strings.Trim(s, " ") == "") {
			b.WriteString("&nbsp;")
		} else {
			b.WriteByte(' ')
		}
		afterSpace = true
	}
	return afterSpace
}

// textFollows reports whether visible text comes before the next line break.
func textFollows(inl []*Node) bool {
	for _, n := range inl {
		if n.Type == NodeHardBreak {
			return false
		}
		if n.Type == NodeText && strings.Trim(n.Text, " ") != "" {
			return true
		}
	}
	return false
}

func openTag(m Mark) string {
	switch m.Type {
	case MarkDocumentLink:
		s := `<span class="document-link" data-document-id="` + html.EscapeString(m.Attr(AttrDocumentID)) + `"`
		if t := m.Attr(AttrDocumentTitle); t != "" {
			s += ` data-document-title="` + html.EscapeString(t) + `"`
		}
		return s + ">"
	case MarkLink:
		return `<a href="` + html.EscapeString(m.Attr(AttrHref)) + `" target="_blank" rel="noopener noreferrer nofollow">`
	case MarkBold:
		return "<strong>"
	case MarkItalic:
		return "<em>"
	case MarkUnderline:
		return "<u>"
	case MarkStrike:
		return "<s>"
	case MarkCode:
		return "<code>"
	}
	return ""
}

func closeTag(m Mark) string {
	switch m.Type {
	case MarkDocumentLink:
		return "</span>"
	case MarkLink:
		return "</a>"
	case MarkBold:
		return "</strong>"
	case MarkItalic:
		return "</em>"
	case MarkUnderline:
		return "</u>"
	case MarkStrike:
		return "</s>"
	case MarkCode:
		return "</code>"
	}
	return ""
}

// Parse reads the stored HTML subset. Unknown elements are unwrapped, scripts
// and styles dropped, and an empty input yields a single empty paragraph.
func Parse(src string) (*Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	return NewDoc(parseBlocks(nodes)...), nil
}

// MustParse is Parse for trusted literals.
func MustParse(src string) *Node {
	doc, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return doc
}

func children(h *html.Node) []*html.Node {
	var out []*html.Node
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func attr(h *html.Node, key string) string {
	for _, a := range h.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(h *html.Node, key string) bool {
	for _, a := range h.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Table: true, atom.Blockquote: true, atom.Pre: true,
	atom.Hr: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.Main: true, atom.Figure: true, atom.Figcaption: true, atom.Aside: true,
	atom.Nav: true, atom.Body: true, atom.Html: true,
}

var droppedAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true, atom.Meta: true,
	atom.Link: true, atom.Noscript: true, atom.Template: true,
}

func parseBlocks(nodes []*html.Node) []*Node {
	var out, pending []*Node
	flush := func() {
		if hasInlineContent(pending) {
			out = append(out, textblocks(NodeParagraph, nil, pending)...)
		}
		pending = nil
	}
	for _, h := range nodes {
		switch {
		case h.Type == html.TextNode:
			pending = append(pending, parseInline(h, nil)...)
		case h.Type != html.ElementNode || droppedAtoms[h.DataAtom]:
		case blockAtoms[h.DataAtom]:
			flush()
			out = append(out, parseBlockElement(h)...)
		default:
			pending = append(pending, parseInline(h, nil)...)
		}
	}
	flush()
	return out
}

// parseBlocksOrEmpty guarantees a container never ends up without a child.
func parseBlocksOrEmpty(nodes []*html.Node) []*Node {
	out := parseBlocks(nodes)
	if len(out) == 0 {
		out = []*Node{NewParagraph()}
	}
	return out
}

func parseBlockElement(h *html.Node) []*Node {
	switch h.DataAtom {
	case atom.P:
		return textblocks(NodeParagraph, alignAttrs(h), parseInlineChildren(h, nil))
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		lvl := clampLevel(int(h.Data[1] - '0'))
		attrs := alignAttrs(h)
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[AttrLevel] = strconv.Itoa(lvl)
		return textblocks(NodeHeading, attrs, parseInlineChildren(h, nil))
	case atom.Pre:
		return []*Node{codeBlock(rawText(h))}
	case atom.Hr:
		return []*Node{NewHorizontalRule()}
	case atom.Ul:
		if attr(h, "data-type") == "taskList" {
			return []*Node{parseList(h, NodeTaskList)}
		}
		return []*Node{parseList(h, NodeBulletList)}
	case atom.Ol:
		l := parseList(h, NodeOrderedList)
		if s := attr(h, "start"); s != "" && s != "1" {
			if _, err := strconv.Atoi(s); err == nil {
				l.SetAttr(AttrStart, s)
			}
		}
		return []*Node{l}
	case atom.Table:
		if t := parseTable(h); t != nil {
			return []*Node{t}
		}
		return nil
	case atom.Blockquote:
		return []*Node{{Type: NodeBlockquote, Content: parseBlocksOrEmpty(children(h))}}
	}
	return parseBlocks(children(h))
}

func parseList(h *html.Node, t NodeType) *Node {
	list := &Node{Type: t}
	for _, c := range children(h) {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			list.Content = append(list.Content, parseItem(c, t == NodeTaskList))
			continue
		}
		if inl := parseInline(c, nil); hasInlineContent(inl) {
			item := NewListItem(textblocks(NodeParagraph, nil, inl)...)
			if t == NodeTaskList {
				item = NewTaskItem(false, item.Content...)
			}
			list.Content = append(list.Content, item)
		}
	}
	if len(list.Content) == 0 {
		list.Content = []*Node{NewListItem(NewParagraph())}
		if t == NodeTaskList {
			list.Content = []*Node{NewTaskItem(false, NewParagraph())}
		}
	}
	return list
}

func parseItem(li *html.Node, task bool) *Node {
	var kids []*html.Node
	for _, c := range children(li) {
		// task item markup may carry a checkbox label; the state lives on the li
		if c.Type == html.ElementNode && (c.DataAtom == atom.Label || (c.DataAtom == atom.Input && attr(c, "type") == "checkbox")) {
			continue
		}
		kids = append(kids, c)
	}
	blocks := parseBlocksOrEmpty(kids)
	if task || attr(li, "data-type") == "taskItem" {
		return NewTaskItem(attr(li, "data-checked") == "true", blocks...)
	}
	return NewListItem(blocks...)
}

func parseTable(h *html.Node) *Node {
	table := &Node{Type: NodeTable}
	var rows []*html.Node
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		for _, c := range children(n) {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, c)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				collect(c)
			}
		}
	}
	collect(h)
	for _, tr := range rows {
		row := &Node{Type: NodeTableRow}
		for _, c := range children(tr) {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Th:
				row.Content = append(row.Content, &Node{Type: NodeTableHeader, Content: parseBlocksOrEmpty(children(c))})
			case atom.Td:
				row.Content = append(row.Content, &Node{Type: NodeTableCell, Content: parseBlocksOrEmpty(children(c))})
			}
		}
		if len(row.Content) > 0 {
			table.Content = append(table.Content, row)
		}
	}
	if len(table.Content) == 0 {
		return nil
	}
	return table
}

func alignAttrs(h *html.Node) map[string]string {
	style := attr(h, "style")
	m := textAlignStyle.FindStringSubmatch(style)
	if m == nil {
		return nil
	}
	switch a := strings.ToLower(m[1]); a {
	case AlignCenter, AlignRight, "justify":
		return map[string]string{AttrTextAlign: a}
	}
	return nil
}

var textAlignStyle = regexp.MustCompile(`(?i)text-align\s*:\s*([a-z]+)`)

func parseInlineChildren(h *html.Node, marks []Mark) []*Node {
	var out []*Node
	for _, c := range children(h) {
		out = append(out, parseInline(c, marks)...)
	}
	return out
}

func parseInline(h *html.Node, marks []Mark) []*Node {
	if h.Type == html.TextNode {
		if h.Data == "" {
			return nil
		}
		return []*Node{{Type: NodeText, Text: h.Data, Marks: cloneOrNil(marks)}}
	}
	if h.Type != html.ElementNode || droppedAtoms[h.DataAtom] {
		return nil
	}
	switch h.DataAtom {
	case atom.Br:
		return []*Node{NewHardBreak()}
	case atom.Img:
		return []*Node{parseImage(h)}
	case atom.Strong, atom.B:
		marks = addMark(marks, Bold())
	case atom.Em, atom.I:
		marks = addMark(marks, Italic())
	case atom.U:
		marks = addMark(marks, Underline())
	case atom.S, atom.Strike, atom.Del:
		marks = addMark(marks, Strike())
	case atom.Code:
		marks = addMark(marks, Code())
	case atom.A:
		if href := attr(h, "href"); href != "" {
			marks = addMark(marks, Link(href))
		}
	case atom.Span:
		if hasAttr(h, "data-document-id") {
			marks = addMark(marks, DocumentLink(attr(h, "data-document-id"), attr(h, "data-document-title")))
		}
	}
	return parseInlineChildren(h, marks)
}

func cloneOrNil(ms []Mark) []Mark {
	if len(ms) == 0 {
		return nil
	}
	return cloneMarks(ms)
}

func parseImage(h *html.Node) *Node {
	n := &Node{Type: NodeImage}
	n.SetAttr(AttrSrc, attr(h, "src"))
	n.SetAttr(AttrAlt, attr(h, "alt"))
	n.SetAttr(AttrWidth, dimension(attr(h, "width")))
	n.SetAttr(AttrHeight, dimension(attr(h, "height")))
	n.SetAttr(AttrAlign, normalizeImageAlign(attr(h, "data-align")))
	return n
}

// dimension accepts "320" or "320px" and drops anything else.
func dimension(v string) string {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return ""
	}
	return strconv.Itoa(int(f + 0.5))
}

func rawText(h *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(h)
	return b.String()
}

func codeBlock(text string) *Node {
	n := &Node{Type: NodeCodeBlock}
	if text != "" {
		n.Content = []*Node{{Type: NodeText, Text: text}}
	}
	return n
}

func hasInlineContent(inl []*Node) bool {
	for _, n := range inl {
		switch n.Type {
		case NodeHardBreak, NodeImage:
			return true
		case NodeText:
			if strings.Trim(n.Text, " \t\n\r\f") != "" {
				return true
			}
		}
	}
	return false
}

// textblocks builds blocks of type t from an inline run, lifting images out as
// sibling blocks. It always returns at least one block.
func textblocks(t NodeType, attrs map[string]string, inl []*Node) []*Node {
	var out []*Node
	var seg []*Node
	emit := func(force bool) {
		seg = finishInline(seg)
		if len(seg) > 0 || force {
			n := &Node{Type: t, Content: seg}
			for k, v := range attrs {
				n.SetAttr(k, v)
			}
			out = append(out, n)
		}
		seg = nil
	}
	images := 0
	for _, n := range inl {
		if n.Type == NodeImage {
			emit(false)
			out = append(out, n)
			images++
			continue
		}
		seg = append(seg, n)
	}
	emit(images == 0)
	return out
}

var spaceRun = regexp.MustCompile(`[ \t\n\r\f]+`)

// finishInline collapses whitespace, trims block edges and merges runs with
// identical marks. Non-breaking spaces survive the collapse and are stored as
// plain spaces.
func finishInline(inl []*Node) []*Node {
	for _, n := range inl {
		if n.Type == NodeText {
			n.Text = spaceRun.ReplaceAllString(n.Text, " ")
		}
	}
	var out []*Node
	for i, n := range inl {
		if n.Type != NodeText {
			out = append(out, n)
			continue
		}
		atStart := len(out) == 0 || out[len(out)-1].Type == NodeHardBreak ||
			(out[len(out)-1].Type == NodeText && strings.HasSuffix(out[len(out)-1].Text, " "))
		if atStart {
			n.Text = strings.TrimLeft(n.Text, " ")
		}
		atEnd := true
		for _, rest := range inl[i+1:] {
			if rest.Type == NodeHardBreak {
				break
			}
			if rest.Type == NodeText && strings.TrimSpace(rest.Text) != "" {
				atEnd = false
				break
			}
		}
		if atEnd {
			n.Text = strings.TrimRight(n.Text, " ")
		}
		if n.Text != "" {
			out = append(out, n)
		}
	}
	for _, n := range out {
		if n.Type == NodeText {
			n.Text = strings.ReplaceAll(n.Text, "\u00a0", " ")
		}
	}
	return mergeText(out)
}

// mergeText joins adjacent text runs with equal marks and drops empty runs.
func mergeText(inl []*Node) []*Node {
	var out []*Node
	for _, n := range inl {
		if n.Type == NodeText && n.Text == "" {
			continue
		}
		if n.Type == NodeText && len(out) > 0 {
			last := out[len(out)-1]
			if last.Type == NodeText && sameMarks(last.Marks, n.Marks) {
				last.Text += n.Text
				continue
			}
		}
		out = append(out, n)
	}
	return out
}
