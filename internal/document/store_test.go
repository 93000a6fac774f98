package document

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newElement(section, key string, pos int) *Element {
	return &Element{
		ID:        key + "-id",
		Key:       key,
		SectionID: section,
		Type:      TypeText,
		Content:   TextContent(key),
		Props:     Props{"tag": "p"},
		Metadata:  Metadata{Position: pos, Version: 1},
	}
}

func TestContentJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Content
	}{
		{"string", `"hello"`, TextContent("hello")},
		{"list", `["a","b"]`, ListContent("a", "b")},
		{"empty list", `[]`, ListContent()},
		{"null", `null`, TextContent("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Content
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.True(t, got.Equal(tt.want), "got %#v", got)
		})
	}

	var bad Content
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &bad))
}

func TestContentEmpty(t *testing.T) {
	assert.True(t, TextContent("   ").Empty())
	assert.False(t, TextContent("x").Empty())
	assert.True(t, ListContent().Empty())
	assert.False(t, ListContent("").Empty())
}

func TestPropsCloneDoesNotAlias(t *testing.T) {
	p := Props{"fields": []any{map[string]any{"label": "Name"}}}
	c := p.Clone()
	c["fields"].([]any)[0].(map[string]any)["label"] = "Changed"
	assert.Equal(t, "Name", p["fields"].([]any)[0].(map[string]any)["label"])
}

func TestSectionSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "CenteredHero"))
	require.NoError(t, store.SetSection("hero", SectionPatch{Elements: map[string]*Element{
		"a": newElement("hero", "a", 0),
	}}))

	snap, ok := store.Section("hero")
	require.True(t, ok)
	snap.Elements["a"].Metadata.Position = 42
	snap.Elements["a"].Content.Text = "mutated"

	again, _ := store.Section("hero")
	assert.Equal(t, 0, again.Elements["a"].Metadata.Position)
	assert.Equal(t, "a", again.Elements["a"].Content.Text)
}

func TestSetSectionRejectsInconsistentPatches(t *testing.T) {
	store := NewMemoryStore()

	err := store.SetSection("hero", SectionPatch{Elements: map[string]*Element{
		"a": newElement("other", "a", 0),
	}})
	assert.True(t, errors.Is(err, ErrInconsistent))

	err = store.SetSection("hero", SectionPatch{Elements: map[string]*Element{
		"a": newElement("hero", "b", 0),
	}})
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestSetSectionMergesShallow(t *testing.T) {
	store := NewMemoryStore()
	layout := "SideBySideBlocks"
	require.NoError(t, store.SetSection("s1", SectionPatch{Layout: &layout}))
	require.NoError(t, store.SetSection("s1", SectionPatch{Elements: map[string]*Element{
		"a": newElement("s1", "a", 0),
	}}))

	sec, ok := store.Section("s1")
	require.True(t, ok)
	assert.Equal(t, layout, sec.Layout)
	assert.Len(t, sec.Elements, 1)
}

func TestSetSectionDoesNotResurrectRemovedSections(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "CenteredHero"))
	require.NoError(t, store.RemoveSection("hero"))

	err := store.SetSection("hero", SectionPatch{Elements: map[string]*Element{
		"a": newElement("hero", "a", 0),
	}})
	assert.True(t, errors.Is(err, ErrSectionNotFound))
	_, ok := store.Section("hero")
	assert.False(t, ok)
	assert.Empty(t, store.SectionOrder())

	bg := "#fff"
	err = store.SetSection("hero", SectionPatch{Background: &bg})
	assert.True(t, errors.Is(err, ErrSectionNotFound))
}

func TestUpdateElementContent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.AddSection("s1", "CenteredHero"))
	require.NoError(t, store.SetSection("s1", SectionPatch{Elements: map[string]*Element{
		"a": newElement("s1", "a", 0),
	}}))

	require.NoError(t, store.UpdateElementContent("s1", "a", ListContent("x", "y")))
	sec, _ := store.Section("s1")
	assert.True(t, sec.Elements["a"].Content.Equal(ListContent("x", "y")))

	assert.True(t, errors.Is(store.UpdateElementContent("nope", "a", TextContent("")), ErrSectionNotFound))
	assert.True(t, errors.Is(store.UpdateElementContent("s1", "zz", TextContent("")), ErrElementNotFound))
}

func TestTrackChangeNotifiesSubscribers(t *testing.T) {
	store := NewMemoryStore()
	var got []ChangeEntry
	cancel := store.Subscribe(func(e ChangeEntry) { got = append(got, e) })

	store.TrackChange(ChangeEntry{Type: ChangeContent, SectionID: "s1"})
	cancel()
	store.TrackChange(ChangeEntry{Type: ChangeLayout, SectionID: "s1"})

	require.Len(t, got, 1)
	assert.Equal(t, ChangeContent, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Len(t, store.Changes(), 2)
}

func TestTriggerAutoSave(t *testing.T) {
	store := NewMemoryStore()
	store.TriggerAutoSave() // no hook installed

	calls := 0
	store.OnAutoSave(func() { calls++ })
	store.TriggerAutoSave()
	assert.Equal(t, 1, calls)
}

func TestSectionOrderOperations(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"hero", "features", "faq"} {
		require.NoError(t, store.AddSection(id, ""))
	}
	assert.Error(t, store.AddSection("hero", ""))

	moved, err := store.MoveSection("faq", -1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, []string{"hero", "faq", "features"}, store.SectionOrder())

	moved, err = store.MoveSection("hero", -1)
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, store.SetSection("hero", SectionPatch{Elements: map[string]*Element{
		"a": newElement("hero", "a", 0),
	}}))
	require.NoError(t, store.DuplicateSection("hero", "hero-copy"))
	assert.Equal(t, []string{"hero", "hero-copy", "faq", "features"}, store.SectionOrder())
	dup, _ := store.Section("hero-copy")
	assert.Equal(t, "hero-copy", dup.Elements["a"].SectionID)

	require.NoError(t, store.RemoveSection("faq"))
	assert.Equal(t, []string{"hero", "hero-copy", "features"}, store.SectionOrder())
	assert.True(t, errors.Is(store.RemoveSection("faq"), ErrSectionNotFound))
}

func TestSaveAndLoadFile(t *testing.T) {
	for _, name := range []string{"page.json", "page.yaml"} {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.AddSection("hero", "CenteredHero"))
			el := newElement("hero", "items", 0)
			el.Type = TypeList
			el.Content = ListContent("one", "two")
			require.NoError(t, store.SetSection("hero", SectionPatch{Elements: map[string]*Element{"items": el}}))

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, store.SaveFile(path))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			sec, ok := loaded.Section("hero")
			require.True(t, ok)
			assert.Equal(t, "CenteredHero", sec.Layout)
			assert.True(t, sec.Elements["items"].Content.Equal(ListContent("one", "two")))
		})
	}

	empty, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, empty.SectionOrder())
}

func TestSectionDense(t *testing.T) {
	sec := NewSection("s", "")
	assert.True(t, sec.Dense())
	sec.Elements["a"] = newElement("s", "a", 0)
	sec.Elements["b"] = newElement("s", "b", 2)
	assert.False(t, sec.Dense())
	sec.Elements["b"].Metadata.Position = 1
	assert.True(t, sec.Dense())
	assert.Equal(t, []string{"a", "b"}, sec.Keys())
}
