package document

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Category is one entry of a tag catalogue.
type Category struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Taxonomy holds the fixed equipment and operations tag catalogues.
type Taxonomy struct {
	Equipment  []Category `yaml:"equipment" json:"equipment"`
	Operations []Category `yaml:"operations" json:"operations"`
}

// DefaultTaxonomy returns the built-in catalogue.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return t
}

// LoadTaxonomy reads a catalogue file; an empty path yields the default.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTaxonomy(b)
}

func ParseTaxonomy(b []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	for _, list := range [][]Category{t.Equipment, t.Operations} {
		seen := map[string]bool{}
		for _, c := range list {
			if c.ID == "" {
				return nil, fmt.Errorf("parse taxonomy: category %q has no id", c.Name)
			}
			if seen[c.ID] {
				return nil, fmt.Errorf("parse taxonomy: duplicate id %q", c.ID)
			}
			seen[c.ID] = true
		}
	}
	return &t, nil
}

func ids(cs []Category) []interface{} {
	out := make([]interface{}, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func find(cs []Category, id string) (Category, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func (t *Taxonomy) EquipmentCategory(id string) (Category, bool) { return find(t.Equipment, id) }

func (t *Taxonomy) OperationsCategory(id string) (Category, bool) { return find(t.Operations, id) }
