package importer

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NewPolicy is the sanitising policy for imported markup: user generated
// content plus embedded images and the attributes the editor stores.
func NewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowDataAttributes()
	p.AllowAttrs("class").OnElements("span")
	p.AllowAttrs("width", "height").OnElements("img")
	p.AllowStyles("text-align").MatchingEnum("left", "center", "right", "justify").
		OnElements("p", "h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

type htmlConverter struct {
	policy *bluemonday.Policy
}

func NewHTMLConverter() Converter {
	return &htmlConverter{policy: NewPolicy()}
}

func (c *htmlConverter) Convert(_ context.Context, input []byte) (string, error) {
	return c.policy.Sanitize(string(input)), nil
}

func (c *htmlConverter) SupportedExtensions() []string { return []string{".html", ".htm"} }

func (c *htmlConverter) Name() string { return "html" }

// textConverter makes one paragraph per non-blank line run.
type textConverter struct{}

func NewTextConverter() Converter { return textConverter{} }

func (textConverter) Convert(_ context.Context, input []byte) (string, error) {
	text := strings.ReplaceAll(string(input), "\r\n", "\n")
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i := range lines {
			lines[i] = html.EscapeString(lines[i])
		}
		b.WriteString("<p>" + strings.Join(lines, "<br>") + "</p>")
	}
	return b.String(), nil
}

func (textConverter) SupportedExtensions() []string { return []string{".txt", ".text"} }

func (textConverter) Name() string { return "plaintext" }
