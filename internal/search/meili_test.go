package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/require"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/document"
)

func TestNewRecordFlattensSections(t *testing.T) {
	d := document.Document{
		ID:            "d1",
		Title:         "Rig Safety",
		Category:      "Safety",
		EquipmentTags: []string{"bop"},
		Sections: []document.Section{
			{ID: "s1", Title: "Intro", Content: "<p>Check <strong>valves</strong></p>"},
			{ID: "s2", Content: "<p>Torque</p>"},
		},
		LastModified: 42,
	}
	r := NewRecord(d)
	require.Equal(t, "d1", r.ID)
	require.Equal(t, []string{"bop"}, r.EquipmentTags)
	require.Equal(t, "Intro\nCheck valves\nSection 2\nTorque", r.Body)
	require.Equal(t, int64(42), r.LastModified)
}

func TestNilMirrorIsUnavailable(t *testing.T) {
	m := NewMirror(config.SearchConfig{})
	require.Nil(t, m)
	require.False(t, m.Healthy())
	require.ErrorIs(t, m.Put(document.Document{ID: "x"}), ErrUnavailable)
	require.ErrorIs(t, m.Remove("x"), ErrUnavailable)
	_, err := m.Suggest("x")
	require.ErrorIs(t, err, ErrUnavailable)
	m.IndexAsync(document.Document{ID: "x"})
	m.RemoveAsync("x")
	m.Close()
}

func TestHitID(t *testing.T) {
	require.Equal(t, "abc", hitID(meili.Hit{"id": json.RawMessage(`"abc"`)}))
}
