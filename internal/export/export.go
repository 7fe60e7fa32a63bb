// Package export renders committed documents as standalone HTML pages or
// Markdown.
package export

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"

	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/linkresolver"
)

type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "html", "markdown" and "md".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return "html"
}

func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// Result is one rendered export.
type Result struct {
	Filename    string
	ContentType string
	Format      Format
	Data        []byte
}

// Exporter renders documents. Document links are resolved through the
// resolver when one is set; otherwise they keep their stored text.
type Exporter struct {
	resolver *linkresolver.Resolver
	policy   *bluemonday.Policy
	markdown *md.Converter
}

func New(resolver *linkresolver.Resolver) *Exporter {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowDataAttributes()
	p.AllowAttrs("class").OnElements("span", "a")
	p.AllowStyles("text-align").MatchingEnum("left", "center", "right", "justify").
		OnElements("p", "h1", "h2", "h3")
	return &Exporter{resolver: resolver, policy: p, markdown: md.NewConverter("", true, nil)}
}

// Render produces doc in format f.
func (e *Exporter) Render(ctx context.Context, doc *document.Document, f Format) (*Result, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatHTML:
		data, err = e.HTML(ctx, doc)
	case FormatMarkdown:
		data, err = e.Markdown(ctx, doc)
	default:
		err = fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Filename:    Filename(doc.Title, f),
		ContentType: f.ContentType(),
		Format:      f,
		Data:        data,
	}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename is a filesystem-safe name for an export of a document titled t.
func Filename(t string, f Format) string {
	name := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(t), "-"), "-.")
	if name == "" {
		name = "document"
	}
	return name + "." + f.Extension()
}

func (e *Exporter) sectionBody(ctx context.Context, doc *document.Document, s document.Section) (string, error) {
	body := s.Content
	if e.resolver != nil {
		out, _, err := e.resolver.RenderHTML(ctx, body, linkresolver.RenderOptions{Origin: doc.ID})
		if err != nil {
			return "", err
		}
		body = out
	}
	return e.policy.Sanitize(body), nil
}

// HTML renders a complete page: the title as h1 and each section as an
// h2 followed by its content.
func (e *Exporter) HTML(ctx context.Context, doc *document.Document) ([]byte, error) {
	var b strings.Builder
	title := html.EscapeString(doc.Title)
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>" + title + "</title>\n</head>\n<body>\n")
	b.WriteString("<article data-document-id=\"" + html.EscapeString(doc.ID) + "\">\n")
	b.WriteString("<h1>" + title + "</h1>\n")
	if doc.Category != "" {
		b.WriteString("<p class=\"category\">" + html.EscapeString(doc.Category) + "</p>\n")
	}
	for i, s := range doc.Sections {
		body, err := e.sectionBody(ctx, doc, s)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		b.WriteString("<section>\n<h2>" + html.EscapeString(s.DisplayTitle(i)) + "</h2>\n")
		b.WriteString(body + "\n</section>\n")
	}
	b.WriteString("</article>\n</body>\n</html>\n")
	return []byte(b.String()), nil
}

// Markdown renders the title as "# " and each section as "## ".
func (e *Exporter) Markdown(ctx context.Context, doc *document.Document) ([]byte, error) {
	var b strings.Builder
	b.WriteString("# " + doc.Title + "\n")
	for i, s := range doc.Sections {
		body, err := e.sectionBody(ctx, doc, s)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		text, err := e.markdown.ConvertString(body)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		b.WriteString("\n## " + s.DisplayTitle(i) + "\n")
		if text = strings.TrimSpace(text); text != "" {
			b.WriteString("\n" + text + "\n")
		}
	}
	return []byte(b.String()), nil
}
