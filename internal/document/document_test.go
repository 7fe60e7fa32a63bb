package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func threeSections() *Document {
	d := NewDocument("Plan", "Ops")
	d.Sections[0].Title = "s0"
	d.AddSection(0, "s1")
	d.AddSection(1, "s2")
	return d
}

func titles(d *Document) []string {
	out := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.Title
	}
	return out
}

func TestNewDocumentDefaults(t *testing.T) {
	d := NewDocument("", "")
	require.NotEmpty(t, d.ID)
	require.Len(t, d.Sections, 1)
	require.Equal(t, "<p></p>", d.Sections[0].Content)
	require.Equal(t, 1, d.Version)

	d.PrepareForSave()
	require.Equal(t, DefaultTitle, d.Title)
	require.Equal(t, DefaultCategory, d.Category)
}

func TestRemoveSectionKeepsOrderAndLastSection(t *testing.T) {
	d := threeSections()
	ids := []string{d.Sections[0].ID, d.Sections[2].ID}

	require.True(t, d.RemoveSection(1))
	require.Equal(t, []string{"s0", "s2"}, titles(d))
	require.Equal(t, ids, []string{d.Sections[0].ID, d.Sections[1].ID})

	require.False(t, d.RemoveSection(5))
	require.True(t, d.RemoveSection(0))
	require.False(t, d.RemoveSection(0))
	require.Len(t, d.Sections, 1)
}

func TestMoveSection(t *testing.T) {
	d := threeSections()
	require.True(t, d.MoveSection(0, 2))
	require.Equal(t, []string{"s1", "s2", "s0"}, titles(d))
	require.False(t, d.MoveSection(1, 1))
	require.False(t, d.MoveSection(-1, 0))
}

func TestCloneIsIndependent(t *testing.T) {
	d := threeSections()
	c := d.Clone()
	c.Sections[0].Title = "changed"
	c.EquipmentTags = append(c.EquipmentTags, "rig")
	require.Equal(t, "s0", d.Sections[0].Title)
	require.Empty(t, d.EquipmentTags)
}

func TestDisplayTitle(t *testing.T) {
	require.Equal(t, "Section 3", Section{}.DisplayTitle(2))
	require.Equal(t, "Casing", Section{Title: "Casing"}.DisplayTitle(0))
}

func TestUpdateSectionKeepsIdentity(t *testing.T) {
	d := NewDocument("a", "b")
	id := d.Sections[0].ID
	require.True(t, d.UpdateSection(0, "New", ""))
	require.Equal(t, id, d.Sections[0].ID)
	require.Equal(t, "<p></p>", d.Sections[0].Content)
	require.False(t, d.UpdateSection(1, "x", "<p>x</p>"))
}

func TestSplitSection(t *testing.T) {
	d := NewDocument("a", "b")
	d.Sections[0].Content = "<p>first</p><p>second</p>"
	require.True(t, d.SplitSection(0, 5, "Part 2"))
	require.Len(t, d.Sections, 2)
	require.Equal(t, "<p>first</p>", d.Sections[0].Content)
	require.Equal(t, "<p>second</p>", d.Sections[1].Content)
	require.Equal(t, "Part 2", d.Sections[1].Title)

	before := d.Clone()
	require.False(t, d.SplitSection(0, 0, "x"))
	require.Equal(t, before, d)
}

func TestMergeSections(t *testing.T) {
	d := threeSections()
	d.Sections[0].Content = "<p>a</p>"
	d.Sections[2].Content = "<p>c</p>"
	require.True(t, d.MergeSections(2, 0))
	require.Equal(t, []string{"s0", "s1"}, titles(d))
	require.Equal(t, "<p>a</p><hr><p>c</p>", d.Sections[0].Content)

	require.False(t, d.MergeSections(0))
	require.False(t, d.MergeSections(0, 9))
}

func TestSectionsFromHeadings(t *testing.T) {
	secs, err := SectionsFromHeadings("<p>pre</p><h2>Casing</h2><p>run casing</p>")
	require.NoError(t, err)
	require.Len(t, secs, 2)
	require.Equal(t, "Introduction", secs[0].Title)
	require.Equal(t, "Casing", secs[1].Title)
	require.Equal(t, "<h2>Casing</h2><p>run casing</p>", secs[1].Content)
}

func TestDraftRoundTrip(t *testing.T) {
	d := threeSections()
	d.EquipmentTags = []string{"rig"}
	dr := d.ToDraft(42)
	require.Equal(t, int64(42), dr.Timestamp)

	other := NewDocument("x", "y")
	other.ApplyDraft(dr)
	require.Equal(t, d.Title, other.Title)
	require.Equal(t, d.Sections, other.Sections)
	require.Equal(t, []string{"rig"}, other.EquipmentTags)
}

func TestValidate(t *testing.T) {
	tax := DefaultTaxonomy()
	d := NewDocument("Plan", "Ops")
	d.EquipmentTags = []string{"rig", "fluids"}
	d.OperationsTags = []string{"rig-move"}
	require.NoError(t, d.Validate(tax))

	d.EquipmentTags = []string{"spaceship"}
	err := d.Validate(tax)
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "equipmentTags", ve.Field)

	d.EquipmentTags = nil
	d.Sections = nil
	err = d.Validate(tax)
	require.ErrorIs(t, err, ErrValidation)
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "sections", ve.Field)
}

func TestTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	require.Len(t, tax.Equipment, 10)
	require.Len(t, tax.Operations, 10)
	c, ok := tax.OperationsCategory("production-drilling")
	require.True(t, ok)
	require.Equal(t, "Production Drilling", c.Name)

	path := filepath.Join(t.TempDir(), "tax.yaml")
	require.NoError(t, os.WriteFile(path, []byte("equipment:\n  - id: a\n    name: A\noperations: []\n"), 0o644))
	custom, err := LoadTaxonomy(path)
	require.NoError(t, err)
	require.Len(t, custom.Equipment, 1)

	_, err = ParseTaxonomy([]byte("equipment:\n  - id: a\n  - id: a\n"))
	require.Error(t, err)
}

func TestImportErrorMessage(t *testing.T) {
	err := error(&ImportError{Filename: "a.docx", Err: errors.New("zip: not a valid zip file")})
	require.Equal(t, "failed to import; try again", err.Error())
	require.ErrorIs(t, err, ErrImport)
}
