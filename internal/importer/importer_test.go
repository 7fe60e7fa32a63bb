package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drilldocs/drilldocs/internal/document"
)

const (
	testRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId6" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/spec" TargetMode="External"/>
</Relationships>`

	testNumbering = `<?xml version="1.0" encoding="UTF-8"?>
<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>
  <w:abstractNum w:abstractNumId="1"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl></w:abstractNum>
  <w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>
  <w:num w:numId="2"><w:abstractNumId w:val="1"/></w:num>
</w:numbering>`

	testBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
  xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<w:body>
  <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Mud Pumps</w:t></w:r></w:p>
  <w:p><w:pPr><w:jc w:val="center"/></w:pPr>
    <w:r><w:rPr><w:b/></w:rPr><w:t>Check</w:t></w:r>
    <w:r><w:t xml:space="preserve"> liners </w:t></w:r>
    <w:r><w:rPr><w:i/><w:b w:val="0"/></w:rPr><w:t>daily</w:t></w:r>
  </w:p>
  <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>Valves</w:t></w:r></w:p>
  <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>Seats</w:t></w:r></w:p>
  <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="2"/></w:numPr></w:pPr><w:r><w:t>Isolate</w:t></w:r></w:p>
  <w:p><w:hyperlink r:id="rId6"><w:r><w:t>Spec sheet</w:t></w:r></w:hyperlink></w:p>
  <w:p><w:r><w:drawing><wp:inline><wp:extent cx="952500" cy="476250"/><a:graphic><a:graphicData><a:blip r:embed="rId5"/></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>
  <w:tbl><w:tr><w:tc><w:p><w:r><w:t>Size</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>7in</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
  <w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Top Drive</w:t></w:r></w:p>
  <w:p><w:r><w:t>Grease</w:t><w:tab/><w:t>weekly</w:t></w:r></w:p>
</w:body>
</w:document>`
)

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sampleDocx(t *testing.T) []byte {
	return buildDocx(t, map[string]string{
		docxBody:               testBody,
		docxRels:               testRels,
		docxNumbering:          testNumbering,
		"word/media/image1.png": "\x89PNG",
	})
}

func TestDocxConverter(t *testing.T) {
	out, err := NewDocxConverter().Convert(context.Background(), sampleDocx(t))
	require.NoError(t, err)

	require.Contains(t, out, "<h1>Mud Pumps</h1>")
	require.Contains(t, out, `<p style="text-align: center"><strong>Check</strong> liners <em>daily</em></p>`)
	require.Contains(t, out, "<ul><li><p>Valves</p></li><li><p>Seats</p></li></ul><ol><li><p>Isolate</p></li></ol>")
	require.Contains(t, out, `<a href="https://example.com/spec">Spec sheet</a>`)
	require.Contains(t, out, `<img src="data:image/png;base64,iVBORw==" width="100" height="50">`)
	require.Contains(t, out, "<table><tr><td><p>Size</p></td><td><p>7in</p></td></tr></table>")
	require.Contains(t, out, "<p>Grease weekly</p>")
}

func TestDocxConverterRejectsOtherArchives(t *testing.T) {
	_, err := NewDocxConverter().Convert(context.Background(), buildDocx(t, map[string]string{"readme.txt": "hi"}))
	require.ErrorIs(t, err, ErrNotDocx)

	_, err = NewDocxConverter().Convert(context.Background(), []byte("not a zip"))
	require.Error(t, err)
}

func TestImportSingleSection(t *testing.T) {
	im := New(nil)
	doc, err := im.Import(context.Background(), "Rig Checklist.docx", sampleDocx(t), Options{})
	require.NoError(t, err)

	require.Equal(t, "Rig Checklist", doc.Title)
	require.Equal(t, document.ImportedCategory, doc.Category)
	require.Equal(t, 1, doc.Version)
	require.Empty(t, doc.EquipmentTags)
	require.Empty(t, doc.OperationsTags)
	require.Len(t, doc.Sections, 1)
	require.Equal(t, document.ImportedSectionName, doc.Sections[0].Title)

	body := doc.Sections[0].Content
	require.Contains(t, body, `src="data:image/png;base64,`)
	require.Contains(t, body, `style="text-align: center"`)
	require.NotContains(t, body, "media/image1.png")
}

func TestImportSplitByHeadings(t *testing.T) {
	doc, err := New(nil).Import(context.Background(), "pumps.docx", sampleDocx(t), Options{SplitByHeadings: true})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	require.Equal(t, "Mud Pumps", doc.Sections[0].Title)
	require.Equal(t, "Top Drive", doc.Sections[1].Title)
}

func TestImportFailuresAreImportErrors(t *testing.T) {
	im := New(nil)
	for _, tc := range []struct {
		name string
		file string
		data []byte
	}{
		{"unsupported", "notes.pdf", []byte("%PDF")},
		{"corrupt docx", "broken.docx", []byte("garbage")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := im.Import(context.Background(), tc.file, tc.data, Options{})
			require.Nil(t, doc)
			require.ErrorIs(t, err, document.ErrImport)
			require.Equal(t, "failed to import; try again", err.Error())
		})
	}
}

func TestImportHTMLIsSanitised(t *testing.T) {
	src := `<h2>Procedure</h2><p onclick="x()">Step <script>alert(1)</script>one</p><span class="document-link" data-document-id="d2" data-document-title="Plan A">Plan A</span>`
	doc, err := New(nil).Import(context.Background(), "page.html", []byte(src), Options{})
	require.NoError(t, err)
	body := doc.Sections[0].Content
	require.NotContains(t, body, "onclick")
	require.NotContains(t, body, "alert")
	require.Contains(t, body, `data-document-id="d2"`)
	require.Equal(t, "page", doc.Title)
}

func TestTextConverter(t *testing.T) {
	out, err := NewTextConverter().Convert(context.Background(), []byte("line one\nline <two>\r\n\r\nsecond"))
	require.NoError(t, err)
	require.Equal(t, "<p>line one<br>line &lt;two&gt;</p><p>second</p>", out)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{".docx", ".htm", ".html", ".text", ".txt"}, r.SupportedExtensions())
	require.Equal(t, "docx", r.Lookup("A.DOCX").Name())
	require.Nil(t, r.Lookup("a.doc"))
	_, err := r.Convert(context.Background(), "x.odt", nil)
	require.True(t, strings.Contains(err.Error(), "unsupported"))
}

func TestTitle(t *testing.T) {
	require.Equal(t, "Report", Title("Report.docx"))
	require.Equal(t, "a.b", Title(`C:\docs\a.b.docx`))
	require.Equal(t, "plain", Title("plain"))
}
