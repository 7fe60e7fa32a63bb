package document

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drilldocs/drilldocs/internal/content"
)

const (
	DefaultTitle        = "Untitled Document"
	DefaultCategory     = "Uncategorized"
	ImportedCategory    = "Imported"
	IntroductionTitle   = "Introduction"
	ImportedSectionName = "Document Content"
)

// NowMillis is the timestamp unit used throughout the store.
func NowMillis() int64 { return time.Now().UnixMilli() }

func NewID() string { return uuid.NewString() }

// NewSection returns a section with an empty paragraph.
func NewSection(title string) Section {
	return Section{ID: NewID(), Title: title, Content: content.EmptyHTML}
}

// NewDocument returns an uncommitted document with one introduction section.
func NewDocument(title, category string) *Document {
	return &Document{
		ID:             NewID(),
		Title:          title,
		Category:       category,
		EquipmentTags:  []string{},
		OperationsTags: []string{},
		Sections:       []Section{NewSection(IntroductionTitle)},
		LastModified:   NowMillis(),
		Version:        1,
	}
}

// DisplayTitle is the section title shown to readers; index is zero based.
func (s Section) DisplayTitle(index int) string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	return "Section " + strconv.Itoa(index+1)
}

// Clone deep-copies d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Tags = cloneStrings(d.Tags)
	c.EquipmentTags = cloneStrings(d.EquipmentTags)
	c.OperationsTags = cloneStrings(d.OperationsTags)
	c.Sections = append([]Section(nil), d.Sections...)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

// Heal restores the invariants of a document at rest: at least one section,
// non-nil tag sets and non-empty section content.
func (d *Document) Heal() {
	if len(d.Sections) == 0 {
		d.Sections = []Section{NewSection(IntroductionTitle)}
	}
	for i := range d.Sections {
		if d.Sections[i].ID == "" {
			d.Sections[i].ID = NewID()
		}
		if strings.TrimSpace(d.Sections[i].Content) == "" {
			d.Sections[i].Content = content.EmptyHTML
		}
	}
	if d.EquipmentTags == nil {
		d.EquipmentTags = []string{}
	}
	if d.OperationsTags == nil {
		d.OperationsTags = []string{}
	}
}

// PrepareForSave applies the save-time defaults.
func (d *Document) PrepareForSave() {
	if d.ID == "" {
		d.ID = NewID()
	}
	if strings.TrimSpace(d.Title) == "" {
		d.Title = DefaultTitle
	}
	if strings.TrimSpace(d.Category) == "" {
		d.Category = DefaultCategory
	}
	d.Heal()
}

// AddSection inserts a new section after index (-1 prepends, out of range
// appends) and returns its position.
func (d *Document) AddSection(after int, title string) int {
	s := NewSection(title)
	at := after + 1
	if at < 0 || at > len(d.Sections) {
		at = len(d.Sections)
	}
	d.Sections = append(d.Sections[:at], append([]Section{s}, d.Sections[at:]...)...)
	return at
}

// RemoveSection deletes section i. Removing the last remaining section or an
// out-of-range index is rejected.
func (d *Document) RemoveSection(i int) bool {
	if len(d.Sections) <= 1 || i < 0 || i >= len(d.Sections) {
		return false
	}
	d.Sections = append(d.Sections[:i:i], d.Sections[i+1:]...)
	return true
}

// MoveSection moves section from to position to.
func (d *Document) MoveSection(from, to int) bool {
	n := len(d.Sections)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	s := d.Sections[from]
	rest := append(append([]Section{}, d.Sections[:from]...), d.Sections[from+1:]...)
	d.Sections = append(rest[:to:to], append([]Section{s}, rest[to:]...)...)
	return true
}

// UpdateSection replaces a section's title and content, keeping its id.
// Empty content is stored as an empty paragraph.
func (d *Document) UpdateSection(i int, title, html string) bool {
	if i < 0 || i >= len(d.Sections) {
		return false
	}
	if strings.TrimSpace(html) == "" {
		html = content.EmptyHTML
	}
	d.Sections[i].Title = title
	d.Sections[i].Content = html
	return true
}

// SplitSection cuts section i at a content position into two sections; the
// second is titled newTitle. Degenerate cuts leave d untouched.
func (d *Document) SplitSection(i, offset int, newTitle string) bool {
	if i < 0 || i >= len(d.Sections) {
		return false
	}
	tree, err := content.Parse(d.Sections[i].Content)
	if err != nil {
		return false
	}
	first, second, ok := content.SplitAt(tree, offset)
	if !ok {
		return false
	}
	tail := NewSection(newTitle)
	tail.Content = content.Serialize(second)
	d.Sections[i].Content = content.Serialize(first)
	d.Sections = append(d.Sections[:i+1], append([]Section{tail}, d.Sections[i+1:]...)...)
	return true
}

// MergeSections folds the listed sections into the lowest-indexed one,
// separated by horizontal rules. Fewer than two distinct valid indexes is a
// no-op.
func (d *Document) MergeSections(indexes ...int) bool {
	seen := map[int]bool{}
	var idx []int
	for _, i := range indexes {
		if i < 0 || i >= len(d.Sections) {
			return false
		}
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return false
	}
	sort.Ints(idx)
	trees := make([]*content.Node, 0, len(idx))
	for _, i := range idx {
		t, err := content.Parse(d.Sections[i].Content)
		if err != nil {
			return false
		}
		trees = append(trees, t)
	}
	target := idx[0]
	d.Sections[target].Content = content.Serialize(content.JoinWithRule(trees...))
	kept := d.Sections[:0:0]
	for i, s := range d.Sections {
		if i == target || !seen[i] {
			kept = append(kept, s)
		}
	}
	d.Sections = kept
	return true
}

// SectionsFromHeadings turns one body of content into sections at its h1/h2
// headings.
func SectionsFromHeadings(html string) ([]Section, error) {
	tree, err := content.Parse(html)
	if err != nil {
		return nil, err
	}
	chunks := content.SplitByHeadings(tree)
	out := make([]Section, 0, len(chunks))
	for _, c := range chunks {
		s := NewSection(c.Title)
		s.Content = content.Serialize(c.Doc)
		out = append(out, s)
	}
	return out, nil
}

// ToDraft captures the editable fields of d.
func (d *Document) ToDraft(ts int64) Draft {
	c := d.Clone()
	return Draft{
		Title:          c.Title,
		Category:       c.Category,
		IsFeatured:     c.IsFeatured,
		Sections:       c.Sections,
		EquipmentTags:  c.EquipmentTags,
		OperationsTags: c.OperationsTags,
		Timestamp:      ts,
	}
}

// ApplyDraft replaces the editable fields of d with the draft's values.
func (d *Document) ApplyDraft(dr Draft) {
	d.Title = dr.Title
	d.Category = dr.Category
	d.IsFeatured = dr.IsFeatured
	d.Sections = append([]Section(nil), dr.Sections...)
	d.EquipmentTags = cloneStrings(dr.EquipmentTags)
	d.OperationsTags = cloneStrings(dr.OperationsTags)
	d.Heal()
}
