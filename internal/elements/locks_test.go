package elements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagecraft/internal/document"
)

// removingSchemas deletes the section from the store while the engine is
// resolving a slot, the way a concurrent section delete would.
type removingSchemas struct {
	store *document.MemoryStore
}

func (r removingSchemas) LayoutElements(layout string) ([]SchemaElement, error) {
	_ = r.store.RemoveSection("hero")
	return []SchemaElement{{Name: "badge_text"}}, nil
}

func TestAddElementDoesNotResurrectRemovedSection(t *testing.T) {
	store := document.NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "leftCopyRightImage"))
	e := New(store, WithSchemas(removingSchemas{store: store}))
	t.Cleanup(func() { _ = e.Close() })

	_, err := e.AddElement(context.Background(), "hero", "badge_text", AddOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, document.ErrSectionNotFound))

	_, ok := store.Section("hero")
	assert.False(t, ok)
	assert.NotContains(t, store.SectionOrder(), "hero")
}

func TestLockSectionsSerializesWithMutations(t *testing.T) {
	e, store := newTestEngine(t)

	unlock := e.LockSections("hero")
	done := make(chan error, 1)
	go func() {
		_, err := e.AddElement(context.Background(), "hero", "text", AddOptions{})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("mutation ran while the section lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, store.RemoveSection("hero"))
	unlock()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrNotFound))
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not resume after unlock")
	}
	_, ok := store.Section("hero")
	assert.False(t, ok)
}

func TestLockSectionsDedupesIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	unlock := e.LockSections("hero", "faq", "hero")
	unlock()
	unlock = e.LockSections("faq")
	unlock()
}
