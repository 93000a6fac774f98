package elements

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		want document.ElementType
	}{
		{"expand_icon", document.TypeIcon},
		{"cta_icon", document.TypeIcon},
		{"cta_text", document.TypeButton},
		{"primary_button", document.TypeButton},
		{"button_subheadline", document.TypeButton},
		{"hero_subheadline", document.TypeSubheadline},
		{"main_headline", document.TypeHeadline},
		{"headline_items", document.TypeHeadline},
		{"badge_text", document.TypeText},
		{"eyebrow", document.TypeText},
		{"trust_items", document.TypeList},
		{"feature_list", document.TypeList},
		{"hero_image", document.TypeImage},
		{"intro_video", document.TypeVideo},
		{"signup_form", document.TypeForm},
		{"rich_body", document.TypeRichText},
		{"body_html", document.TypeRichText},
		{"customer_count", document.TypeText},
		{"HERO_IMAGE", document.TypeImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name))
		})
	}
}

func TestCatalogCoversEveryType(t *testing.T) {
	defs := Catalog()
	require.Len(t, defs, len(document.ElementTypes()))
	for _, d := range defs {
		assert.True(t, d.Type.Valid(), d.Type)
		assert.False(t, d.DefaultContent.Empty(), d.Type)
		for _, p := range d.RequiredProps {
			assert.Contains(t, d.DefaultProps, p, "%s default props lack required %s", d.Type, p)
		}
	}

	d, _ := Lookup(document.TypeButton)
	d.DefaultProps["href"] = "mutated"
	again, _ := Lookup(document.TypeButton)
	assert.Equal(t, "#", again.DefaultProps["href"])
}

func seedSearch(t *testing.T) (*Engine, map[string]string) {
	t.Helper()
	e, _ := newTestEngine(t)
	ctx := context.Background()
	keys := map[string]string{}

	add := func(name, section, typ string, opts AddOptions) {
		k, err := e.AddElement(ctx, section, typ, opts)
		require.NoError(t, err)
		keys[name] = k
	}
	hello := document.TextContent("Hello World")
	add("hello", "hero", "text", AddOptions{Content: &hello})
	add("buy", "hero", "button", AddOptions{Key: "button_buy", Props: document.Props{"variant": "primary"}})
	add("learn", "hero", "button", AddOptions{Key: "button_learn", Props: document.Props{"variant": "ghost"}})
	items := document.ListContent("Fast shipping", "World class support")
	add("list", "faq", "list", AddOptions{Content: &items})
	return e, keys
}

func searchKeys(els []*document.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.Key
	}
	return out
}

func TestSearchElements(t *testing.T) {
	e, keys := seedSearch(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		criteria SearchCriteria
		want     []string
	}{
		{"by type", SearchCriteria{Type: document.TypeButton}, []string{"button_buy", "button_learn"}},
		{"content is case-insensitive", SearchCriteria{ContentContains: "world"}, []string{keys["list"], keys["hello"]}},
		{"list items joined", SearchCriteria{ContentContains: "shipping world"}, []string{keys["list"]}},
		{"props match", SearchCriteria{PropsMatch: document.Props{"variant": "ghost"}}, []string{"button_learn"}},
		{"section scoped", SearchCriteria{SectionID: "hero", ContentContains: "world"}, []string{keys["hello"]}},
		{"key glob", SearchCriteria{KeyPattern: "button_*"}, []string{"button_buy", "button_learn"}},
		{"where", SearchCriteria{Where: `type == "button" && props.variant == "primary"`}, []string{"button_buy"}},
		{"where on position", SearchCriteria{SectionID: "hero", Where: `position >= 1`}, []string{"button_buy", "button_learn"}},
		{"no match", SearchCriteria{Type: document.TypeVideo}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.SearchElements(ctx, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, searchKeys(got))
		})
	}
}

func TestSearchElementsModifiedRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	e, _ := newTestEngine(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	old, err := e.AddElement(ctx, "hero", "text", AddOptions{})
	require.NoError(t, err)
	clock = now.Add(time.Hour)
	fresh, err := e.AddElement(ctx, "hero", "text", AddOptions{})
	require.NoError(t, err)

	got, err := e.SearchElements(ctx, SearchCriteria{ModifiedAfter: now.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, searchKeys(got))

	got, err = e.SearchElements(ctx, SearchCriteria{ModifiedBefore: now.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{old}, searchKeys(got))
}

func TestSearchElementsRejectsBadCriteria(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SearchElements(ctx, SearchCriteria{Where: `type ==`})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = e.SearchElements(ctx, SearchCriteria{Where: `position + 1`})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = e.SearchElements(ctx, SearchCriteria{KeyPattern: "[unclosed"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = e.SearchElements(ctx, SearchCriteria{SectionID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetElementsByType(t *testing.T) {
	e, _ := seedSearch(t)
	ctx := context.Background()

	buttons, err := e.GetElementsByType(ctx, "hero", document.TypeButton)
	require.NoError(t, err)
	assert.Equal(t, []string{"button_buy", "button_learn"}, searchKeys(buttons))

	all, err := e.GetAllElements(ctx, "hero")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Len(t, FilterElementsByType(all, document.TypeText, document.TypeButton), 3)

	_, err = e.GetElement(ctx, "hero", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, document.ErrElementNotFound))
}

func TestValidateElement(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	key, err := e.AddElement(ctx, "hero", "button", AddOptions{})
	require.NoError(t, err)
	_, err = e.BatchUpdateElements(ctx, "hero", []Update{{Key: key, Field: "props", Value: map[string]any{}}})
	require.NoError(t, err)

	res, err := e.ValidateElement(ctx, "hero", key)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.False(t, res.PropsValid)
	assert.True(t, res.HasRequiredContent)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, IssueMissingRequiredProp, res.Errors[0].Code)
	assert.Equal(t, "Missing required property: href", res.Errors[0].Message)

	require.NoError(t, e.UpdateElementContent(ctx, "hero", key, document.TextContent("")))
	res, err = e.ValidateElement(ctx, "hero", key)
	require.NoError(t, err)
	codes := []string{}
	for _, issue := range res.Errors {
		codes = append(codes, issue.Code)
	}
	assert.Equal(t, []string{IssueMissingRequiredProp, IssueMissingContent}, codes)
	assert.False(t, res.HasRequiredContent)

	res, err = e.ValidateElement(ctx, "hero", "ghost")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, IssueNotFound, res.Errors[0].Code)
	assert.Equal(t, "Element not found", res.Errors[0].Message)

	_, err = e.ValidateElement(ctx, "missing", key)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidateElementWarnsOnUnknownProps(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	key, err := e.AddElement(ctx, "hero", "icon", AddOptions{Props: document.Props{"spin": true}})
	require.NoError(t, err)

	res, err := e.ValidateElement(ctx, "hero", key)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, IssueUnknownProp, res.Warnings[0].Code)
}

func TestValidateAllElements(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	good, err := e.AddElement(ctx, "hero", "text", AddOptions{})
	require.NoError(t, err)
	empty := document.ListContent()
	bad, err := e.AddElement(ctx, "hero", "list", AddOptions{Content: &empty})
	require.NoError(t, err)

	results, err := e.ValidateAllElements(ctx, "hero")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)

	sec, _ := store.Section("hero")
	assert.False(t, sec.Elements[good].EditState.HasErrors)
	assert.True(t, sec.Elements[bad].EditState.HasErrors)
	assert.False(t, sec.Elements[bad].Validation.IsValid)
}

func TestTemplates(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	content := document.TextContent("Start free trial")
	key, err := e.AddElement(ctx, "hero", "button", AddOptions{Content: &content, Props: document.Props{"variant": "secondary"}})
	require.NoError(t, err)

	tpl, err := e.SaveElementAsTemplate(ctx, "hero", key, "Trial CTA", "")
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, []string{"button", "interactive"}, tpl.Tags)
	assert.Equal(t, "interactive", tpl.Category)
	assert.Equal(t, "Saved template: Trial CTA", store.LastAnnouncement())

	list, err := e.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tpl.ID, list[0].ID)

	found, err := e.FindTemplate(ctx, "Trial CTA")
	require.NoError(t, err)
	pos := 0
	newKey, err := e.LoadElementFromTemplate(ctx, "faq", found, &pos)
	require.NoError(t, err)
	el, err := e.GetElement(ctx, "faq", newKey)
	require.NoError(t, err)
	assert.Equal(t, "Start free trial", el.Content.Text)
	assert.Equal(t, "secondary", el.Props["variant"])

	require.NoError(t, e.DeleteTemplate(ctx, tpl.ID))
	list, err = e.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = e.DeleteTemplate(ctx, tpl.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = e.SaveElementAsTemplate(ctx, "hero", key, "  ", "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSaveTemplateIsBestEffort(t *testing.T) {
	e, _ := newTestEngine(t, WithKV(failingKV{kv.NewMemoryStore()}))
	ctx := context.Background()
	key, err := e.AddElement(ctx, "hero", "text", AddOptions{})
	require.NoError(t, err)

	tpl, err := e.SaveElementAsTemplate(ctx, "hero", key, "Body", "copy")
	require.NoError(t, err)
	assert.Equal(t, "copy", tpl.Category)
	assert.Equal(t, []string{"text", "text"}, tpl.Tags)
}

func TestTemplateCategoryDefaultsToCatalog(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	tests := []struct {
		typ  string
		want Category
	}{
		{"headline", CategoryText},
		{"image", CategoryMedia},
		{"form", CategoryInteractive},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			key, err := e.AddElement(ctx, "hero", tt.typ, AddOptions{})
			require.NoError(t, err)
			tpl, err := e.SaveElementAsTemplate(ctx, "hero", key, "From "+tt.typ, "")
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), tpl.Category)
			assert.Equal(t, []string{tt.typ, string(tt.want)}, tpl.Tags)
		})
	}
}

func TestSchemaRegistryLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
PricingTable:
  - element: headline
    mandatory: true
  - element: plan_list
`), 0o644))

	r := NewSchemaRegistry()
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, r.Layouts(), "PricingTable")
	assert.Contains(t, r.Layouts(), "leftCopyRightImage")

	elems, err := r.LayoutElements("PricingTable")
	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, "plan_list", elems[1].Name)
	assert.True(t, elems[0].Mandatory)

	require.NoError(t, os.WriteFile(path, []byte("Broken:\n  - mandatory: true\n"), 0o644))
	_, err = r.LoadFile(path)
	assert.Error(t, err)
}

func TestErrorMatching(t *testing.T) {
	err := elementNotFound("remove element", "hero", "k1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "remove element: not found section=hero element=k1: element not found", err.Error())

	wrapped := fault("commit", "hero", "", errors.New("disk"))
	assert.True(t, errors.Is(wrapped, ErrFault))
	assert.Same(t, err, fault("outer", "", "", err))
	assert.Equal(t, CodeFault, CodeOf(errors.New("plain")))
}
