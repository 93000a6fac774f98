package elements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

// TemplatesKey is the key-value entry holding the saved template list.
const TemplatesKey = "elementTemplates"

// Template is a reusable element blueprint.
type Template struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Type      document.ElementType `json:"type"`
	Content   document.Content     `json:"content"`
	Props     document.Props       `json:"props"`
	Category  string               `json:"category"`
	Tags      []string             `json:"tags"`
	CreatedAt time.Time            `json:"createdAt"`
}

// SaveElementAsTemplate captures an element's type, content and props under
// name and returns the template. An empty category defaults to the catalog
// category of the element's type. Persisting the template is best effort: a
// failed write is logged and the template is still returned.
func (e *Engine) SaveElementAsTemplate(ctx context.Context, sectionID, key, name, category string) (Template, error) {
	const op = "save element as template"
	name = strings.TrimSpace(name)
	if name == "" {
		return Template{}, invalid(op, sectionID, key, "template name is required")
	}
	el, err := e.GetElement(ctx, sectionID, key)
	if err != nil {
		return Template{}, err
	}
	def, _ := Lookup(el.Type)
	if category == "" {
		category = string(def.Category)
	}
	tpl := Template{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      el.Type,
		Content:   el.Content.Clone(),
		Props:     el.Props.Clone(),
		Category:  category,
		Tags:      []string{string(el.Type), string(def.Category)},
		CreatedAt: e.now(),
	}

	if err := e.updateTemplates(ctx, func(list []Template) ([]Template, error) {
		return append(list, tpl), nil
	}); err != nil {
		e.logger.Warn("template not persisted",
			zap.String("section", sectionID),
			zap.String("element", key),
			zap.String("template", tpl.ID),
			zap.Error(err))
	}
	e.store.AnnounceLiveRegion("Saved template: " + name)
	return tpl, nil
}

// ListTemplates returns the saved templates in creation order.
func (e *Engine) ListTemplates(ctx context.Context) ([]Template, error) {
	list, err := e.loadTemplates(ctx)
	if err != nil {
		return nil, fault("list templates", "", "", err)
	}
	return list, nil
}

// FindTemplate returns the template whose id or name matches ref.
func (e *Engine) FindTemplate(ctx context.Context, ref string) (Template, error) {
	const op = "find template"
	list, err := e.loadTemplates(ctx)
	if err != nil {
		return Template{}, fault(op, "", "", err)
	}
	for _, t := range list {
		if t.ID == ref || t.Name == ref {
			return t, nil
		}
	}
	return Template{}, newError(CodeNotFound, op, "", "", fmt.Errorf("no template %q", ref))
}

// DeleteTemplate removes a template by id or name.
func (e *Engine) DeleteTemplate(ctx context.Context, ref string) error {
	const op = "delete template"
	err := e.updateTemplates(ctx, func(list []Template) ([]Template, error) {
		for i, t := range list {
			if t.ID == ref || t.Name == ref {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, newError(CodeNotFound, op, "", "", fmt.Errorf("no template %q", ref))
	})
	if err != nil {
		return fault(op, "", "", err)
	}
	return nil
}

// LoadElementFromTemplate adds a new element built from tpl and returns its
// key. A nil position appends.
func (e *Engine) LoadElementFromTemplate(ctx context.Context, sectionID string, tpl Template, position *int) (string, error) {
	if !tpl.Type.Valid() {
		return "", invalid("load element from template", sectionID, "", "template %q has unknown type %q", tpl.Name, tpl.Type)
	}
	content := tpl.Content.Clone()
	return e.AddElement(ctx, sectionID, string(tpl.Type), AddOptions{
		Content:  &content,
		Props:    tpl.Props,
		Position: position,
	})
}

func (e *Engine) loadTemplates(ctx context.Context) ([]Template, error) {
	var list []Template
	if err := kv.GetJSON(ctx, e.kv, TemplatesKey, &list); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []Template{}, nil
		}
		return nil, err
	}
	return list, nil
}

// updateTemplates is a serialized read-modify-write of the template list.
func (e *Engine) updateTemplates(ctx context.Context, fn func([]Template) ([]Template, error)) error {
	e.templatesMu.Lock()
	defer e.templatesMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()
	list, err := e.loadTemplates(ctx)
	if err != nil {
		return err
	}
	list, err = fn(list)
	if err != nil {
		return err
	}
	return kv.SetJSON(ctx, e.kv, TemplatesKey, list)
}
