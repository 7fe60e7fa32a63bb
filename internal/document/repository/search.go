package repository

import (
	"context"
	"strings"
	"unicode"

	"github.com/drilldocs/drilldocs/internal/content"
	"github.com/drilldocs/drilldocs/internal/document"
)

// ExcerptRadius is the number of characters kept on each side of a match.
const ExcerptRadius = 50

// Search matches query case-insensitively against titles, section titles and
// the plain text of section content. A blank query matches nothing.
func (s *Store) Search(ctx context.Context, query string) ([]document.SearchResult, error) {
	q := strings.TrimSpace(query)
	results := []document.SearchResult{}
	if q == "" {
		return results, nil
	}
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	needle := fold(q)
	for _, d := range docs {
		if indexFold(fold(d.Title), needle) >= 0 {
			results = append(results, document.SearchResult{Document: d, SectionIndex: -1, Excerpt: d.Title})
		}
		for i, sec := range d.Sections {
			if indexFold(fold(sec.Title), needle) >= 0 {
				results = append(results, document.SearchResult{Document: d, SectionIndex: i, Excerpt: sec.Title})
			}
			if ex, ok := Excerpt(content.PlainTextOf(sec.Content), q); ok {
				results = append(results, document.SearchResult{Document: d, SectionIndex: i, Excerpt: ex})
			}
		}
	}
	return results, nil
}

// Excerpt returns text around the first case-insensitive match of query,
// ExcerptRadius characters on each side.
func Excerpt(text, query string) (string, bool) {
	hay, needle := fold(text), fold(query)
	i := indexFold(hay, needle)
	if i < 0 || len(needle) == 0 {
		return "", false
	}
	start := max(0, i-ExcerptRadius)
	end := min(len(hay), i+len(needle)+ExcerptRadius)
	return string([]rune(text)[start:end]), true
}

// fold lowercases rune by rune so indexes line up with the original text.
func fold(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

func indexFold(hay, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, c := range needle {
			if hay[i+j] != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
