package elements

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *document.MemoryStore) {
	t.Helper()
	store := document.NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "leftCopyRightImage"))
	require.NoError(t, store.AddSection("faq", "AccordionFAQ"))
	e := New(store, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e, store
}

func addN(t *testing.T, e *Engine, section string, n int) []string {
	t.Helper()
	keys := make([]string, n)
	for i := range keys {
		k, err := e.AddElement(context.Background(), section, "text", AddOptions{})
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}

func positionOf(t *testing.T, store *document.MemoryStore, section, key string) int {
	t.Helper()
	sec, ok := store.Section(section)
	require.True(t, ok)
	el, ok := sec.Elements[key]
	require.True(t, ok, "element %s missing", key)
	return el.Metadata.Position
}

func requireDense(t *testing.T, store *document.MemoryStore, section string) {
	t.Helper()
	sec, ok := store.Section(section)
	require.True(t, ok)
	var got []int
	for _, el := range sec.Elements {
		got = append(got, el.Metadata.Position)
	}
	sort.Ints(got)
	for i, p := range got {
		require.Equal(t, i, p, "positions %v are not dense", got)
	}
}

func TestDensityAcrossMixedOperations(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 4)
	requireDense(t, store, "hero")

	pos := 0
	_, err := e.AddElement(ctx, "hero", "image", AddOptions{Position: &pos})
	require.NoError(t, err)
	requireDense(t, store, "hero")

	_, err = e.RemoveElement(ctx, "hero", keys[1], RemoveOptions{SkipConfirm: true})
	require.NoError(t, err)
	requireDense(t, store, "hero")

	_, err = e.DuplicateElement(ctx, "hero", keys[2], DuplicateOptions{})
	require.NoError(t, err)
	requireDense(t, store, "hero")

	_, err = e.MoveElementToPosition(ctx, "hero", keys[3], 0)
	require.NoError(t, err)
	requireDense(t, store, "hero")

	_, err = e.MoveElementToPosition(ctx, "hero", keys[3], 4)
	require.NoError(t, err)
	requireDense(t, store, "hero")
}

func TestAddElementShiftsLaterSiblings(t *testing.T) {
	e, store := newTestEngine(t)
	keys := addN(t, e, "hero", 3)

	pos := 1
	newKey, err := e.AddElement(context.Background(), "hero", "text", AddOptions{Position: &pos})
	require.NoError(t, err)

	assert.Equal(t, 0, positionOf(t, store, "hero", keys[0]))
	assert.Equal(t, 2, positionOf(t, store, "hero", keys[1]))
	assert.Equal(t, 3, positionOf(t, store, "hero", keys[2]))
	assert.Equal(t, 1, positionOf(t, store, "hero", newKey))
}

func TestAddElementScenario(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	first, err := e.AddElement(ctx, "faq", "text", AddOptions{})
	require.NoError(t, err)
	img, err := e.AddElement(ctx, "faq", "image", AddOptions{InsertMode: InsertAfter, ReferenceKey: first})
	require.NoError(t, err)

	sec, _ := store.Section("faq")
	require.Len(t, sec.Elements, 2)
	assert.NotEqual(t, first, img)
	assert.Equal(t, 0, sec.Elements[first].Metadata.Position)
	assert.Equal(t, 1, sec.Elements[img].Metadata.Position)
	assert.Equal(t, "faq", sec.Elements[img].SectionID)
	assert.Equal(t, document.TypeImage, sec.Elements[img].Type)
	assert.Equal(t, "Added image element", store.LastAnnouncement())
}

func TestAddElementDefaultsAndOptions(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	content := document.TextContent("Buy now")
	key, err := e.AddElement(ctx, "hero", "button", AddOptions{
		Key:     "cta",
		Content: &content,
		Props:   document.Props{"variant": "secondary"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cta", key)

	el, err := e.GetElement(ctx, "hero", key)
	require.NoError(t, err)
	assert.Equal(t, "Buy now", el.Content.Text)
	assert.Equal(t, "secondary", el.Props["variant"])
	assert.Equal(t, "#", el.Props["href"])
	assert.Equal(t, 1, el.Metadata.Version)
	assert.True(t, el.Metadata.AddedManually)
	assert.NotEmpty(t, el.ID)

	_, err = e.AddElement(ctx, "hero", "text", AddOptions{Key: "cta"})
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = e.AddElement(ctx, "missing", "text", AddOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, ok := store.Section("missing")
	assert.False(t, ok, "a failed add must not create the section")

	_, err = e.AddElement(ctx, "hero", "text", AddOptions{InsertMode: InsertAfter, ReferenceKey: "nope"})
	assert.True(t, errors.Is(err, ErrNotFound))

	changes := store.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, document.ChangeContent, changes[0].Type)
	assert.Equal(t, "editor", changes[0].Source)
}

func TestAddElementGeneratedKeyFormat(t *testing.T) {
	e, _ := newTestEngine(t)
	key, err := e.AddElement(context.Background(), "hero", "headline", AddOptions{})
	require.NoError(t, err)
	assert.Regexp(t, `^headline_0_[0-9a-z]+_[0-9a-z]{5}$`, key)
}

func TestAddOptionalElementUsesSchemaSlot(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 3)

	key, err := e.AddElement(ctx, "hero", "cta_text", AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cta_text", key)

	el, err := e.GetElement(ctx, "hero", key)
	require.NoError(t, err)
	assert.Equal(t, document.TypeButton, el.Type)
	assert.True(t, el.Metadata.IsOptional)
	assert.Equal(t, "cta_text", el.Metadata.OptionalElementName)
	assert.Equal(t, 1, el.Metadata.Position)
	assert.Equal(t, 2, positionOf(t, store, "hero", keys[1]))

	// badge_text sits at schema index 4, beyond the current count.
	key, err = e.AddElement(ctx, "hero", "badge_text", AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, positionOf(t, store, "hero", key))

	// Unknown slots append.
	key, err = e.AddElement(ctx, "hero", "promo_video", AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, positionOf(t, store, "hero", key))
	el, _ = e.GetElement(ctx, "hero", key)
	assert.Equal(t, document.TypeVideo, el.Type)
	requireDense(t, store, "hero")
}

type failingSchemas struct{}

func (failingSchemas) LayoutElements(string) ([]SchemaElement, error) {
	return nil, errors.New("schema service down")
}

func TestAddOptionalElementSchemaFailureAppends(t *testing.T) {
	e, store := newTestEngine(t, WithSchemas(failingSchemas{}))
	addN(t, e, "hero", 2)
	key, err := e.AddElement(context.Background(), "hero", "headline_main", AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, positionOf(t, store, "hero", key))
}

func TestRemoveElementCompacts(t *testing.T) {
	e, store := newTestEngine(t)
	keys := addN(t, e, "hero", 4)

	ok, err := e.RemoveElement(context.Background(), "hero", keys[1], RemoveOptions{SkipConfirm: true})
	require.NoError(t, err)
	assert.True(t, ok)

	sec, _ := store.Section("hero")
	assert.Equal(t, []string{keys[0], keys[2], keys[3]}, sec.Keys())
	requireDense(t, store, "hero")
	assert.Equal(t, "Deleted text element", store.LastAnnouncement())
}

func TestRemoveElementKeepPositions(t *testing.T) {
	e, store := newTestEngine(t)
	keys := addN(t, e, "hero", 3)

	_, err := e.RemoveElement(context.Background(), "hero", keys[0], RemoveOptions{SkipConfirm: true, KeepPositions: true})
	require.NoError(t, err)
	assert.Equal(t, 1, positionOf(t, store, "hero", keys[1]))
	assert.Equal(t, 2, positionOf(t, store, "hero", keys[2]))
}

func TestRemoveElementConfirmation(t *testing.T) {
	ctrl := gomock.NewController(t)
	confirmer := capability.NewMockConfirmer(ctrl)
	e, store := newTestEngine(t, WithConfirmer(confirmer))
	keys := addN(t, e, "hero", 2)
	ctx := context.Background()

	confirmer.EXPECT().Confirm(gomock.Any(), "Are you sure you want to delete this element?").Return(false, nil)
	ok, err := e.RemoveElement(ctx, "hero", keys[0], RemoveOptions{})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrAborted))
	sec, _ := store.Section("hero")
	assert.Len(t, sec.Elements, 2)

	confirmer.EXPECT().Confirm(gomock.Any(), gomock.Any()).Return(true, nil)
	ok, err = e.RemoveElement(ctx, "hero", keys[0], RemoveOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.RemoveElement(ctx, "hero", "missing", RemoveOptions{})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNotFound))
}

type failingKV struct{ kv.Store }

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestRemoveElementBackupFailureDoesNotBlock(t *testing.T) {
	e, store := newTestEngine(t, WithKV(failingKV{kv.NewMemoryStore()}))
	keys := addN(t, e, "hero", 1)

	ok, err := e.RemoveElement(context.Background(), "hero", keys[0], RemoveOptions{SkipConfirm: true, SaveBackup: true})
	require.NoError(t, err)
	assert.True(t, ok)
	sec, _ := store.Section("hero")
	assert.Empty(t, sec.Elements)
}

func TestBackupAndRestore(t *testing.T) {
	e, store := newTestEngine(t, WithBackupOnDelete(true))
	ctx := context.Background()
	keys := addN(t, e, "hero", 3)
	require.NoError(t, e.UpdateElementContent(ctx, "hero", keys[1], document.TextContent("keep me")))

	_, err := e.RemoveElement(ctx, "hero", keys[1], RemoveOptions{SkipConfirm: true})
	require.NoError(t, err)

	backups, err := e.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, keys[1], backups[0].ElementKey)
	assert.Equal(t, "hero", backups[0].SectionID)

	key, err := e.RestoreElementBackup(ctx, "", keys[1])
	require.NoError(t, err)
	assert.Equal(t, keys[1], key)
	assert.Equal(t, 1, positionOf(t, store, "hero", key))
	assert.Equal(t, 2, positionOf(t, store, "hero", keys[2]))
	el, _ := e.GetElement(ctx, "hero", key)
	assert.Equal(t, "keep me", el.Content.Text)
	requireDense(t, store, "hero")

	backups, err = e.ListBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups)

	_, err = e.RestoreElementBackup(ctx, "", keys[1])
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDuplicateElement(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 2)
	require.NoError(t, e.UpdateElementContent(ctx, "hero", keys[0], document.TextContent("original copy")))
	_, err := e.ConvertElementType(ctx, "hero", keys[0], document.TypeHeadline)
	require.NoError(t, err)

	tests := []struct {
		name        string
		opts        DuplicateOptions
		wantContent string
	}{
		{"preserve", DuplicateOptions{}, "original copy"},
		{"reset content", DuplicateOptions{ResetContent: true}, "Your Headline Here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dupKey, err := e.DuplicateElement(ctx, "hero", keys[0], tt.opts)
			require.NoError(t, err)
			dup, err := e.GetElement(ctx, "hero", dupKey)
			require.NoError(t, err)
			orig, _ := e.GetElement(ctx, "hero", keys[0])

			assert.Equal(t, tt.wantContent, dup.Content.Text)
			assert.Equal(t, 1, dup.Metadata.Version)
			assert.Equal(t, 2, orig.Metadata.Version)
			assert.NotEqual(t, orig.ID, dup.ID)
			assert.Equal(t, orig.Metadata.Position+1, dup.Metadata.Position)
			requireDense(t, store, "hero")
		})
	}

	_, err = e.DuplicateElement(ctx, "hero", "missing", DuplicateOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReorderElementsStrict(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 3)

	require.NoError(t, e.ReorderElements(ctx, "hero", []string{keys[2], keys[0], keys[1]}))
	sec, _ := store.Section("hero")
	assert.Equal(t, []string{keys[2], keys[0], keys[1]}, sec.Keys())
	assert.Equal(t, "Reordered 3 elements", store.LastAnnouncement())

	tests := []struct {
		name  string
		order []string
	}{
		{"short", []string{keys[0], keys[1]}},
		{"duplicate", []string{keys[0], keys[0], keys[1]}},
		{"unknown", []string{keys[0], keys[1], "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ReorderElements(ctx, "hero", tt.order)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
			sec, _ := store.Section("hero")
			assert.Equal(t, []string{keys[2], keys[0], keys[1]}, sec.Keys())
		})
	}
}

func TestMoveElementUpDown(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 3)

	ok, err := e.MoveElementUp(ctx, "hero", keys[2])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, positionOf(t, store, "hero", keys[2]))
	assert.Equal(t, 2, positionOf(t, store, "hero", keys[1]))
	assert.Equal(t, "Moved text element up", store.LastAnnouncement())

	ok, err = e.MoveElementUp(ctx, "hero", keys[0])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.MoveElementDown(ctx, "hero", keys[1])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.MoveElementDown(ctx, "hero", keys[0])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, positionOf(t, store, "hero", keys[0]))
}

func TestMoveElementUpMissingRankIsConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 3)
	_, err := e.BatchDeleteElements(ctx, "hero", []string{keys[1]})
	require.NoError(t, err)

	_, err = e.MoveElementUp(ctx, "hero", keys[2])
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestMoveElementToPosition(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 4)

	ok, err := e.MoveElementToPosition(ctx, "hero", keys[0], 2)
	require.NoError(t, err)
	assert.True(t, ok)
	sec, _ := store.Section("hero")
	assert.Equal(t, []string{keys[1], keys[2], keys[0], keys[3]}, sec.Keys())
	assert.Equal(t, "Moved text element to position 3", store.LastAnnouncement())

	ok, err = e.MoveElementToPosition(ctx, "hero", keys[3], 0)
	require.NoError(t, err)
	assert.True(t, ok)
	sec, _ = store.Section("hero")
	assert.Equal(t, []string{keys[3], keys[1], keys[2], keys[0]}, sec.Keys())

	ok, err = e.MoveElementToPosition(ctx, "hero", keys[3], 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.MoveElementToPosition(ctx, "hero", keys[3], 4)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestMoveElementToSection(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	heroKeys := addN(t, e, "hero", 2)
	addN(t, e, "faq", 2)

	ok, err := e.MoveElementToSection(ctx, "hero", "faq", heroKeys[0], nil)
	require.NoError(t, err)
	assert.True(t, ok)

	hero, _ := store.Section("hero")
	faq, _ := store.Section("faq")
	assert.NotContains(t, hero.Elements, heroKeys[0])
	require.Contains(t, faq.Elements, heroKeys[0])
	assert.Equal(t, "faq", faq.Elements[heroKeys[0]].SectionID)
	assert.Equal(t, 2, faq.Elements[heroKeys[0]].Metadata.Position)
	assert.Equal(t, "Moved text element to different section", store.LastAnnouncement())

	_, err = e.MoveElementToSection(ctx, "hero", "hero", heroKeys[1], nil)
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = e.MoveElementToSection(ctx, "hero", "nowhere", heroKeys[1], nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMoveElementToSectionCollisionIsLoggedNotReranked(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, store := newTestEngine(t, WithLogger(zap.New(core)))
	ctx := context.Background()
	heroKeys := addN(t, e, "hero", 1)
	faqKeys := addN(t, e, "faq", 2)

	pos := 0
	ok, err := e.MoveElementToSection(ctx, "hero", "faq", heroKeys[0], &pos)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 0, positionOf(t, store, "faq", heroKeys[0]))
	assert.Equal(t, 0, positionOf(t, store, "faq", faqKeys[0]))
	assert.Equal(t, 1, positionOf(t, store, "faq", faqKeys[1]))
	assert.Equal(t, 1, logs.FilterMessage("cross-section insert left positions unranked").Len())
}

func TestMoveElementToSectionKeyCollision(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddElement(ctx, "hero", "text", AddOptions{Key: "shared"})
	require.NoError(t, err)
	_, err = e.AddElement(ctx, "faq", "text", AddOptions{Key: "shared"})
	require.NoError(t, err)

	_, err = e.MoveElementToSection(ctx, "hero", "faq", "shared", nil)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestCopyElementToSection(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	heroKeys := addN(t, e, "hero", 1)
	_, err := e.ConvertElementType(ctx, "hero", heroKeys[0], document.TypeHeadline)
	require.NoError(t, err)

	newKey, err := e.CopyElementToSection(ctx, "hero", "faq", heroKeys[0], nil)
	require.NoError(t, err)
	assert.NotEqual(t, heroKeys[0], newKey)

	orig, _ := e.GetElement(ctx, "hero", heroKeys[0])
	cp, err := e.GetElement(ctx, "faq", newKey)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, cp.ID)
	assert.Equal(t, 1, cp.Metadata.Version)
	assert.Equal(t, 2, orig.Metadata.Version)
	assert.Equal(t, "faq", cp.SectionID)
	assert.Equal(t, 0, cp.Metadata.Position)
	assert.Equal(t, "Copied headline element to different section", store.LastAnnouncement())
}

func TestConvertElementType(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 1)
	require.NoError(t, e.UpdateElementContent(ctx, "hero", keys[0], document.TextContent("Hello")))

	ok, err := e.ConvertElementType(ctx, "hero", keys[0], document.TypeButton)
	require.NoError(t, err)
	assert.True(t, ok)
	el, _ := e.GetElement(ctx, "hero", keys[0])
	assert.Equal(t, "Hello", el.Content.Text)
	assert.Equal(t, "#", el.Props["href"])
	assert.Equal(t, 2, el.Metadata.Version)
	assert.Equal(t, "Converted text to button", store.LastAnnouncement())

	ok, err = e.ConvertElementType(ctx, "hero", keys[0], document.TypeList)
	require.NoError(t, err)
	assert.True(t, ok)
	el, _ = e.GetElement(ctx, "hero", keys[0])
	assert.True(t, el.Content.IsList)
	assert.Equal(t, []string{"First item", "Second item", "Third item"}, el.Content.Items)
	assert.Equal(t, 3, el.Metadata.Version)

	// Same type: props go back to the defaults, content stays.
	require.NoError(t, e.UpdateElementContent(ctx, "hero", keys[0], document.ListContent("a", "b")))
	require.NoError(t, e.SetElementProps(ctx, "hero", keys[0], document.Props{"ordered": true}))
	el, _ = e.GetElement(ctx, "hero", keys[0])
	version := el.Metadata.Version

	ok, err = e.ConvertElementType(ctx, "hero", keys[0], document.TypeList)
	require.NoError(t, err)
	assert.True(t, ok)
	el, _ = e.GetElement(ctx, "hero", keys[0])
	def, _ := Lookup(document.TypeList)
	assert.Equal(t, def.DefaultProps, el.Props)
	assert.Equal(t, []string{"a", "b"}, el.Content.Items)
	assert.Equal(t, version+1, el.Metadata.Version)
	assert.Equal(t, "Reset list to defaults", store.LastAnnouncement())

	_, err = e.ConvertElementType(ctx, "hero", keys[0], "carousel")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestBatchUpdateElements(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 2)
	before := len(store.Changes())

	n, err := e.BatchUpdateElements(ctx, "hero", []Update{
		{Key: keys[0], Field: "content", Value: "First"},
		{Key: keys[1], Field: "props.color", Value: "#ff0000"},
		{Key: "ghost", Field: "content", Value: "x"},
		{Key: keys[1], Field: "metadata", Value: 1},
	})
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	a, _ := e.GetElement(ctx, "hero", keys[0])
	b, _ := e.GetElement(ctx, "hero", keys[1])
	assert.Equal(t, "First", a.Content.Text)
	assert.Equal(t, "#ff0000", b.Props["color"])
	assert.Len(t, store.Changes(), before+1)
	assert.Equal(t, "Updated 2 elements", store.LastAnnouncement())
}

func TestBatchDeleteLeavesGapsUntilCompacted(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	keys := addN(t, e, "hero", 5)
	before := len(store.Changes())

	n, err := e.BatchDeleteElements(ctx, "hero", []string{keys[1], keys[3], "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.Changes(), before+1)
	assert.Equal(t, "Deleted 2 elements", store.LastAnnouncement())

	sec, _ := store.Section("hero")
	assert.False(t, sec.Dense())
	assert.Equal(t, 4, positionOf(t, store, "hero", keys[4]))

	moved, err := e.CompactPositions(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	requireDense(t, store, "hero")
	sec, _ = store.Section("hero")
	assert.Equal(t, []string{keys[0], keys[2], keys[4]}, sec.Keys())

	moved, err = e.CompactPositions(ctx, "hero")
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestBatchDeleteDeclined(t *testing.T) {
	declined := capability.ConfirmFunc(func(_ context.Context, msg string) (bool, error) {
		assert.Equal(t, "Are you sure you want to delete 2 elements?", msg)
		return false, nil
	})
	e, store := newTestEngine(t, WithConfirmer(declined))
	keys := addN(t, e, "hero", 2)

	n, err := e.BatchDeleteElements(context.Background(), "hero", keys)
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, ErrAborted))
	sec, _ := store.Section("hero")
	assert.Len(t, sec.Elements, 2)
}

func TestAutoFocusFocusesNewElement(t *testing.T) {
	ctrl := gomock.NewController(t)
	focuser := capability.NewMockFocuser(ctrl)
	e, _ := newTestEngine(t, WithFocuser(focuser), WithAutoFocusDelay(5*time.Millisecond))

	focused := make(chan string, 1)
	focuser.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil)
	focuser.EXPECT().Focus(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, sel string) error {
		focused <- sel
		return nil
	})

	key, err := e.AddElement(context.Background(), "hero", "text", AddOptions{AutoFocus: true})
	require.NoError(t, err)

	select {
	case sel := <-focused:
		assert.Equal(t, capability.ElementSelector("hero", key), sel)
	case <-time.After(2 * time.Second):
		t.Fatal("element was not focused")
	}
}

func TestAutoFocusSkippedAfterRemoval(t *testing.T) {
	ctrl := gomock.NewController(t)
	focuser := capability.NewMockFocuser(ctrl)
	e, _ := newTestEngine(t, WithFocuser(focuser), WithAutoFocusDelay(20*time.Millisecond))
	ctx := context.Background()

	key, err := e.AddElement(ctx, "hero", "text", AddOptions{AutoFocus: true})
	require.NoError(t, err)
	_, err = e.RemoveElement(ctx, "hero", key, RemoveOptions{SkipConfirm: true})
	require.NoError(t, err)

	// The focuser has no expectations: any call fails the test.
	assert.Eventually(t, func() bool { return e.pendingFocus() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseCancelsPendingFocus(t *testing.T) {
	ctrl := gomock.NewController(t)
	focuser := capability.NewMockFocuser(ctrl)
	e, _ := newTestEngine(t, WithFocuser(focuser), WithAutoFocusDelay(time.Hour))

	_, err := e.AddElement(context.Background(), "hero", "text", AddOptions{AutoFocus: true})
	require.NoError(t, err)
	assert.Equal(t, 1, e.pendingFocus())
	require.NoError(t, e.Close())
	assert.Zero(t, e.pendingFocus())
}

func TestConcurrentAddsStayDense(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	done := make(chan error)
	for i := 0; i < 20; i++ {
		go func(i int) {
			pos := i % 3
			_, err := e.AddElement(ctx, "hero", "text", AddOptions{Position: &pos})
			done <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}
	sec, _ := store.Section("hero")
	assert.Len(t, sec.Elements, 20)
	requireDense(t, store, "hero")
}
