package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"path"
	"strconv"
	"strings"
)

// ErrNotDocx is returned for archives without word/document.xml.
var ErrNotDocx = errors.New("not a word document")

const (
	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	docxBody      = "word/document.xml"
	docxRels      = "word/_rels/document.xml.rels"
	docxNumbering = "word/numbering.xml"

	// EMUs per CSS pixel at 96 dpi.
	emuPerPixel = 9525
)

type docxConverter struct{}

// NewDocxConverter reads WordprocessingML packages. Embedded pictures become
// data URIs so the result has no external file references.
func NewDocxConverter() Converter { return docxConverter{} }

func (docxConverter) SupportedExtensions() []string { return []string{".docx"} }

func (docxConverter) Name() string { return "docx" }

func (docxConverter) Convert(ctx context.Context, input []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return "", fmt.Errorf("open package: %w", err)
	}
	pkg := &docxPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		pkg.files[f.Name] = f
	}
	if pkg.files[docxBody] == nil {
		return "", ErrNotDocx
	}
	if pkg.rels, err = pkg.readRels(); err != nil {
		return "", err
	}
	if pkg.ordered, err = pkg.readNumbering(); err != nil {
		return "", err
	}
	body, err := pkg.open(docxBody)
	if err != nil {
		return "", err
	}
	defer body.Close()
	w := &docxWriter{pkg: pkg}
	if err := w.walk(ctx, xml.NewDecoder(body)); err != nil {
		return "", err
	}
	return w.out.String(), nil
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type docxPackage struct {
	files   map[string]*zip.File
	rels    map[string]relationship
	ordered map[string]bool
}

func (p *docxPackage) open(name string) (io.ReadCloser, error) {
	f := p.files[name]
	if f == nil {
		return nil, fmt.Errorf("missing part %s", name)
	}
	return f.Open()
}

func (p *docxPackage) readPart(name string, v interface{}) (bool, error) {
	if p.files[name] == nil {
		return false, nil
	}
	rc, err := p.open(name)
	if err != nil {
		return false, err
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (p *docxPackage) readRels() (map[string]relationship, error) {
	var doc struct {
		Rels []relationship `xml:"Relationship"`
	}
	out := map[string]relationship{}
	if _, err := p.readPart(docxRels, &doc); err != nil {
		return nil, err
	}
	for _, r := range doc.Rels {
		out[r.ID] = r
	}
	return out, nil
}

// readNumbering maps numId to whether level 0 is numbered rather than
// bulleted.
func (p *docxPackage) readNumbering() (map[string]bool, error) {
	var doc struct {
		Abstract []struct {
			ID   string `xml:"abstractNumId,attr"`
			Lvls []struct {
				Ilvl   string `xml:"ilvl,attr"`
				NumFmt struct {
					Val string `xml:"val,attr"`
				} `xml:"numFmt"`
			} `xml:"lvl"`
		} `xml:"abstractNum"`
		Nums []struct {
			ID       string `xml:"numId,attr"`
			Abstract struct {
				Val string `xml:"val,attr"`
			} `xml:"abstractNumId"`
		} `xml:"num"`
	}
	out := map[string]bool{}
	if _, err := p.readPart(docxNumbering, &doc); err != nil {
		return nil, err
	}
	fmts := map[string]string{}
	for _, a := range doc.Abstract {
		for _, l := range a.Lvls {
			if l.Ilvl == "0" {
				fmts[a.ID] = l.NumFmt.Val
			}
		}
	}
	for _, n := range doc.Nums {
		f := fmts[n.Abstract.Val]
		out[n.ID] = f != "" && f != "bullet" && f != "none"
	}
	return out, nil
}

// image returns the data URI for relationship id.
func (p *docxPackage) image(id string) (string, bool) {
	rel, ok := p.rels[id]
	if !ok || rel.TargetMode == "External" {
		return "", false
	}
	name := path.Clean(path.Join("word", rel.Target))
	rc, err := p.open(name)
	if err != nil {
		return "", false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", false
	}
	return "data:" + ImageMIME(name) + ";base64," + base64.StdEncoding.EncodeToString(data), true
}

// ImageMIME guesses an image type from its file name; unknown types are
// treated as JPEG.
func ImageMIME(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	}
	return "image/jpeg"
}

type runProps struct {
	bold, italic, underline, strike bool
}

type paragraph struct {
	heading int
	numID   string
	bullet  bool
	align   string
	body    strings.Builder
}

type docxWriter struct {
	pkg *docxPackage
	out strings.Builder

	para    *paragraph
	outer   []*paragraph
	run     runProps
	inRun   bool
	inText  bool
	href    string
	list    string
	tables  int
	extentW int
	extentH int
}

func (w *docxWriter) walk(ctx context.Context, dec *xml.Decoder) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			w.closeList()
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			if w.inText && w.para != nil {
				w.text(string(t))
			}
		}
	}
}

func attrVal(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggled reads an on/off property such as <w:b/> or <w:b w:val="0"/>.
func toggled(e xml.StartElement) bool {
	switch attrVal(e, "val") {
	case "0", "false", "none", "off":
		return false
	}
	return true
}

func (w *docxWriter) start(e xml.StartElement) {
	if e.Name.Space != wordNS {
		switch e.Name.Local {
		case "extent":
			w.extentW, _ = strconv.Atoi(attrVal(e, "cx"))
			w.extentH, _ = strconv.Atoi(attrVal(e, "cy"))
		case "blip":
			w.picture(attrVal(e, "embed"))
		case "imagedata":
			w.picture(attrVal(e, "id"))
		}
		return
	}
	switch e.Name.Local {
	case "p":
		if w.para != nil {
			w.outer = append(w.outer, w.para)
		}
		w.para = &paragraph{}
	case "pStyle":
		if w.para != nil {
			w.para.heading, w.para.bullet = paragraphStyle(attrVal(e, "val"))
		}
	case "numId":
		if w.para != nil && attrVal(e, "val") != "0" {
			w.para.numID = attrVal(e, "val")
		}
	case "jc":
		if w.para != nil {
			w.para.align = alignment(attrVal(e, "val"))
		}
	case "r":
		w.run = runProps{}
		w.inRun = true
	case "b":
		w.run.bold = toggled(e)
	case "i":
		w.run.italic = toggled(e)
	case "u":
		w.run.underline = toggled(e)
	case "strike", "dstrike":
		w.run.strike = toggled(e)
	case "t":
		w.inText = true
	case "tab":
		if w.para != nil && w.inRun {
			w.text(" ")
		}
	case "br", "cr":
		if w.para != nil && attrVal(e, "type") != "page" {
			w.para.body.WriteString("<br>")
		}
	case "hyperlink":
		if rel, ok := w.pkg.rels[attrVal(e, "id")]; ok && rel.TargetMode == "External" {
			w.href = rel.Target
		}
	case "tbl":
		w.flushParagraph()
		w.closeList()
		w.tables++
		w.out.WriteString("<table>")
	case "tr":
		w.out.WriteString("<tr>")
	case "tc":
		w.out.WriteString("<td>")
	}
}

func (w *docxWriter) end(e xml.EndElement) {
	if e.Name.Space != wordNS {
		if e.Name.Local == "inline" || e.Name.Local == "anchor" {
			w.extentW, w.extentH = 0, 0
		}
		return
	}
	switch e.Name.Local {
	case "p":
		w.flushParagraph()
		if n := len(w.outer); n > 0 {
			w.para, w.outer = w.outer[n-1], w.outer[:n-1]
		}
	case "t":
		w.inText = false
	case "r":
		w.inRun = false
	case "hyperlink":
		w.href = ""
	case "drawing":
		w.extentW, w.extentH = 0, 0
	case "tbl":
		w.flushParagraph()
		w.out.WriteString("</table>")
		w.tables--
	case "tr":
		w.out.WriteString("</tr>")
	case "tc":
		w.out.WriteString("</td>")
	}
}

func paragraphStyle(style string) (heading int, bullet bool) {
	s := strings.ToLower(style)
	switch {
	case s == "title":
		return 1, false
	case strings.HasPrefix(s, "heading") && len(s) == len("heading")+1:
		if n, err := strconv.Atoi(s[len("heading"):]); err == nil && n >= 1 {
			return n, false
		}
	case strings.HasPrefix(s, "listbullet"):
		return 0, true
	}
	return 0, false
}

func alignment(jc string) string {
	switch jc {
	case "center", "right":
		return jc
	case "both", "distribute":
		return "justify"
	}
	return ""
}

func (w *docxWriter) text(s string) {
	var open, close string
	if w.href != "" {
		open += `<a href="` + html.EscapeString(w.href) + `">`
		close = "</a>" + close
	}
	for _, m := range []struct {
		on  bool
		tag string
	}{{w.run.bold, "strong"}, {w.run.italic, "em"}, {w.run.underline, "u"}, {w.run.strike, "s"}} {
		if m.on {
			open += "<" + m.tag + ">"
			close = "</" + m.tag + ">" + close
		}
	}
	w.para.body.WriteString(open + html.EscapeString(s) + close)
}

func (w *docxWriter) picture(relID string) {
	if w.para == nil {
		return
	}
	src, ok := w.pkg.image(relID)
	if !ok {
		return
	}
	tag := `<img src="` + src + `"`
	if w.extentW > 0 && w.extentH > 0 {
		tag += fmt.Sprintf(` width="%d" height="%d"`, (w.extentW+emuPerPixel/2)/emuPerPixel, (w.extentH+emuPerPixel/2)/emuPerPixel)
	}
	w.para.body.WriteString(tag + ">")
}

func (w *docxWriter) flushParagraph() {
	p := w.para
	if p == nil {
		return
	}
	w.para = nil
	body := p.body.String()
	if w.tables == 0 && (p.numID != "" || p.bullet) {
		kind := "ul"
		if w.pkg.ordered[p.numID] {
			kind = "ol"
		}
		if w.list != kind {
			w.closeList()
			w.out.WriteString("<" + kind + ">")
			w.list = kind
		}
		w.out.WriteString("<li><p>" + body + "</p></li>")
		return
	}
	if w.tables == 0 {
		w.closeList()
	}
	tag := "p"
	if p.heading > 0 {
		tag = "h" + strconv.Itoa(min(p.heading, 6))
	}
	style := ""
	if p.align != "" {
		style = ` style="text-align: ` + p.align + `"`
	}
	w.out.WriteString("<" + tag + style + ">" + body + "</" + tag + ">")
}

func (w *docxWriter) closeList() {
	if w.list != "" {
		w.out.WriteString("</" + w.list + ">")
		w.list = ""
	}
}
