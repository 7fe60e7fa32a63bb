package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	src := `<h2 style="text-align: center">Plan <strong>A</strong></h2>` +
		`<p>See <span class="document-link" data-document-id="doc-1" data-document-title="Plan A">Plan A</span> and ` +
		`<a href="https://x.test" target="_blank" rel="noopener noreferrer nofollow">site</a><br>next</p>` +
		`<img src="data:image/png;base64,AAAA" width="320" height="240" data-align="center">` +
		`<ul data-type="taskList"><li data-type="taskItem" data-checked="true"><p>check</p></li></ul>` +
		`<table><tbody><tr><th><p>H</p></th></tr><tr><td><p>c</p></td></tr></tbody></table>` +
		`<hr><pre><code>x &lt; y</code></pre>`

	doc := MustParse(src)
	require.Equal(t, src, Serialize(doc))

	again := MustParse(Serialize(doc))
	require.True(t, doc.Equal(again))

	imgs := Images(again)
	require.Len(t, imgs, 1)
	require.Equal(t, "320", imgs[0].Attr(AttrWidth))
	require.Equal(t, "240", imgs[0].Attr(AttrHeight))
	require.Equal(t, AlignCenter, imgs[0].Attr(AttrAlign))
}

func TestSignificantSpacesSurviveReparse(t *testing.T) {
	for _, text := range []string{"a  b", " lead", "trail ", "a   b  ", " "} {
		doc := &Node{Type: NodeDoc, Content: []*Node{
			{Type: NodeParagraph, Content: []*Node{{Type: NodeText, Text: text}}},
		}}
		again := MustParse(Serialize(doc))
		require.True(t, doc.Equal(again), "%q serialized as %s", text, Serialize(doc))
		require.Equal(t, Len(doc), Len(again))
	}

	doc := &Node{Type: NodeDoc, Content: []*Node{{Type: NodeParagraph, Content: []*Node{
		{Type: NodeText, Text: "x "},
		{Type: NodeText, Text: " y", Marks: []Mark{Bold()}},
		NewHardBreak(),
		{Type: NodeText, Text: " z"},
	}}}}
	require.Equal(t, `<p>x <strong>&nbsp;y</strong><br>&nbsp;z</p>`, Serialize(doc))
	require.True(t, doc.Equal(MustParse(Serialize(doc))))
}

func TestParseEmpty(t *testing.T) {
	for _, src := range []string{"", "   ", EmptyHTML} {
		doc := MustParse(src)
		require.Len(t, doc.Content, 1)
		require.Equal(t, NodeParagraph, doc.Content[0].Type)
		require.Equal(t, EmptyHTML, Serialize(doc))
	}
}

func TestParseNormalizesForeignMarkup(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"deep heading clamps", `<h5>Deep</h5>`, `<h3>Deep</h3>`},
		{"unknown tags unwrap", `<div><font>Hello</font> <b>there</b></div>`, `<p>Hello <strong>there</strong></p>`},
		{"scripts dropped", `<p>a<script>alert(1)</script></p>`, `<p>a</p>`},
		{"whitespace collapses", "<p>  a \n  b  </p>", `<p>a b</p>`},
		{"image lifted out of paragraph", `<p>a<img src="x.png">b</p>`, `<p>a</p><img src="x.png"><p>b</p>`},
		{"px dimensions", `<img src="x.png" width="120px" height="80.4">`, `<img src="x.png" width="120" height="80">`},
		{"bad align dropped", `<img src="x.png" data-align="middle">`, `<img src="x.png">`},
		{"ordered start kept", `<ol start="3"><li>x</li></ol>`, `<ol start="3"><li><p>x</p></li></ol>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Serialize(MustParse(tc.in)))
		})
	}
}

func TestMarksKeepCanonicalOrder(t *testing.T) {
	doc := MustParse(`<p><strong><a href="https://x.test">x</a></strong></p>`)
	require.Equal(t,
		`<p><a href="https://x.test" target="_blank" rel="noopener noreferrer nofollow"><strong>x</strong></a></p>`,
		Serialize(doc))
}

func TestPlainText(t *testing.T) {
	doc := MustParse(`<h1>Title</h1><p>one<br>two</p><ul><li><p>item</p></li></ul>`)
	require.Equal(t, "Title\none\ntwo\nitem", PlainText(doc))
	require.Equal(t, len([]rune(PlainText(doc))), Len(doc))
	require.Equal(t, "Plan A", PlainTextOf(`<p>Plan <em>A</em></p>`))
}

func TestSplitAt(t *testing.T) {
	first, second, ok := SplitAt(MustParse(`<p>abcdef</p><p>gh</p>`), 3)
	require.True(t, ok)
	require.Equal(t, `<p>abc</p>`, Serialize(first))
	require.Equal(t, `<p>def</p><p>gh</p>`, Serialize(second))

	// a position inside a list keeps the whole list in the first half
	first, second, ok = SplitAt(MustParse(`<ul><li><p>one</p></li><li><p>two</p></li></ul><p>after</p>`), 5)
	require.True(t, ok)
	require.Equal(t, `<ul><li><p>one</p></li><li><p>two</p></li></ul>`, Serialize(first))
	require.Equal(t, `<p>after</p>`, Serialize(second))

	_, _, ok = SplitAt(MustParse(`<p>abc</p>`), 0)
	require.False(t, ok)
	_, _, ok = SplitAt(MustParse(`<p>abc</p>`), 3)
	require.False(t, ok)
	_, _, ok = SplitAt(MustParse(`<table><tbody><tr><td><p>a</p></td></tr></tbody></table>`), 1)
	require.False(t, ok)
}

func TestJoinWithRule(t *testing.T) {
	got := JoinWithRule(MustParse(`<p>a</p>`), MustParse(`<p>b</p>`))
	require.Equal(t, `<p>a</p><hr><p>b</p>`, Serialize(got))
}

func TestSplitByHeadings(t *testing.T) {
	chunks := SplitByHeadings(MustParse(`<p>intro</p><h1>One</h1><p>a</p><h3>sub</h3><h2></h2><p>b</p>`))
	require.Len(t, chunks, 3)
	require.Equal(t, "Introduction", chunks[0].Title)
	require.Equal(t, `<p>intro</p>`, Serialize(chunks[0].Doc))
	require.Equal(t, "One", chunks[1].Title)
	require.Equal(t, `<h1>One</h1><p>a</p><h3>sub</h3>`, Serialize(chunks[1].Doc))
	require.Equal(t, "Section 2", chunks[2].Title)
	require.Equal(t, `<h2></h2><p>b</p>`, Serialize(chunks[2].Doc))

	chunks = SplitByHeadings(MustParse(`<p>plain</p>`))
	require.Len(t, chunks, 1)
	require.Equal(t, "Main Content", chunks[0].Title)
}
