package picker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
)

func newTestPicker(t *testing.T) (*Picker, *document.MemoryStore) {
	t.Helper()
	store := document.NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "leftCopyRightImage"))
	engine := elements.New(store)
	t.Cleanup(func() { _ = engine.Close() })
	return New(engine, nil), store
}

func TestPickWhileHidden(t *testing.T) {
	p, _ := newTestPicker(t)
	_, err := p.Pick(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, elements.ErrAborted))
}

func TestShowUnknownSection(t *testing.T) {
	p, _ := newTestPicker(t)
	err := p.Show("missing", Position{}, Options{})
	assert.True(t, errors.Is(err, elements.ErrNotFound))
	assert.False(t, p.State().Visible)
}

func TestPickAddsAndHides(t *testing.T) {
	p, store := newTestPicker(t)
	ctx := context.Background()

	require.NoError(t, p.Show("hero", Position{X: 10, Y: 48}, Options{}))
	st := p.State()
	assert.True(t, st.Visible)
	assert.Equal(t, "hero", st.SectionID)
	assert.Equal(t, Position{X: 10, Y: 48}, st.Position)

	first, err := p.Pick(ctx, "headline")
	require.NoError(t, err)
	assert.False(t, p.State().Visible)

	require.NoError(t, p.Show("hero", Position{}, Options{InsertMode: elements.InsertBefore, ReferenceKey: first}))
	second, err := p.Pick(ctx, "button")
	require.NoError(t, err)

	sec, _ := store.Section("hero")
	assert.Equal(t, 0, sec.Elements[second].Metadata.Position)
	assert.Equal(t, 1, sec.Elements[first].Metadata.Position)
	assert.Equal(t, document.TypeButton, sec.Elements[second].Type)
}

func TestPickRestrictedType(t *testing.T) {
	p, store := newTestPicker(t)
	require.NoError(t, p.Show("hero", Position{}, Options{
		RestrictedTypes:   []document.ElementType{document.TypeForm},
		RestrictionReason: "hero sections already have a form",
	}))

	_, err := p.Pick(context.Background(), "form")
	require.Error(t, err)
	assert.True(t, errors.Is(err, elements.ErrValidation))
	assert.Contains(t, err.Error(), "hero sections already have a form")
	assert.True(t, p.State().Visible, "picker stays open after a rejected pick")

	sec, _ := store.Section("hero")
	assert.Empty(t, sec.Elements)
}

func TestAvailableFiltersCatalog(t *testing.T) {
	p, _ := newTestPicker(t)
	require.NoError(t, p.Show("hero", Position{}, Options{
		Categories:      []elements.Category{elements.CategoryMedia},
		RestrictedTypes: []document.ElementType{document.TypeVideo},
	}))

	var got []document.ElementType
	for _, def := range p.Available() {
		got = append(got, def.Type)
	}
	assert.Equal(t, []document.ElementType{document.TypeImage, document.TypeIcon}, got)

	p.Hide()
	assert.Equal(t, State{}, p.State())
}
