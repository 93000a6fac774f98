package elements

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/livetemplate/pagecraft/internal/document"
)

// ConvertElementType changes an element's type. Props are replaced by the new
// type's defaults and the version is bumped. Content survives only when it has
// the same shape as the new type's default content. Converting to the current
// type resets the props to their defaults.
func (e *Engine) ConvertElementType(ctx context.Context, sectionID, key string, newType document.ElementType) (bool, error) {
	const op = "convert element type"
	def, ok := Lookup(newType)
	if !ok {
		return false, invalid(op, sectionID, key, "unknown element type %q", newType)
	}

	var oldType document.ElementType
	var before, after *document.Element
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		before = el.Clone()
		oldType = el.Type
		el.Type = newType
		el.Props = def.DefaultProps
		if !el.Content.SameKind(def.DefaultContent) {
			el.Content = def.DefaultContent
		}
		el.Metadata.Version++
		el.Metadata.LastModified = e.now()
		after = el.Clone()
		return nil
	})
	if err != nil {
		return false, err
	}

	announcement := fmt.Sprintf("Converted %s to %s", oldType, newType)
	if oldType == newType {
		announcement = fmt.Sprintf("Reset %s to defaults", newType)
	}
	e.record(document.ChangeContent, sectionID, key,
		map[string]any{"type": before.Type, "content": before.Content, "props": before.Props},
		map[string]any{"type": after.Type, "content": after.Content, "props": after.Props},
		announcement)
	return true, nil
}

// Update sets one field of one element. Field is "content", "props" or
// "props.<name>".
type Update struct {
	Key   string `json:"elementKey"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

// BatchUpdateElements applies every update in one commit and one change entry.
// Updates that fail are skipped; their errors are combined in the returned
// error alongside the count of applied updates.
func (e *Engine) BatchUpdateElements(ctx context.Context, sectionID string, updates []Update) (int, error) {
	const op = "batch update elements"
	var applied []Update
	var errs error
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		now := e.now()
		for _, u := range updates {
			el, ok := sec.Elements[u.Key]
			if !ok {
				errs = multierr.Append(errs, elementNotFound(op, sectionID, u.Key))
				continue
			}
			if err := applyField(el, u); err != nil {
				errs = multierr.Append(errs, invalid(op, sectionID, u.Key, "%v", err))
				continue
			}
			el.Metadata.LastModified = now
			applied = append(applied, u)
		}
		if len(applied) == 0 {
			return errNoop
		}
		return nil
	})
	if err == errNoop {
		return 0, errs
	}
	if err != nil {
		return 0, multierr.Append(err, errs)
	}

	e.record(document.ChangeContent, sectionID, "", nil, map[string]any{
		"op":      "element-batch-update",
		"updates": applied,
	}, fmt.Sprintf("Updated %d elements", len(applied)))
	return len(applied), errs
}

func applyField(el *document.Element, u Update) error {
	switch {
	case u.Field == "content":
		c, err := document.ContentFrom(u.Value)
		if err != nil {
			return err
		}
		el.Content = c
	case u.Field == "props":
		props, ok := u.Value.(map[string]any)
		if !ok {
			if p, isProps := u.Value.(document.Props); isProps {
				props = p
			} else {
				return fmt.Errorf("props must be an object, got %T", u.Value)
			}
		}
		el.Props = document.Props(props).Clone()
	case strings.HasPrefix(u.Field, "props."):
		name := strings.TrimPrefix(u.Field, "props.")
		if name == "" {
			return fmt.Errorf("empty prop name")
		}
		if el.Props == nil {
			el.Props = document.Props{}
		}
		if u.Value == nil {
			delete(el.Props, name)
		} else {
			el.Props[name] = u.Value
		}
	default:
		return fmt.Errorf("unsupported field %q", u.Field)
	}
	return nil
}

// UpdateElementContent replaces one element's content and records the edit.
func (e *Engine) UpdateElementContent(ctx context.Context, sectionID, key string, content document.Content) error {
	const op = "update element content"
	var old document.Content
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		if el.Content.Equal(content) {
			return errNoop
		}
		old = el.Content
		el.Content = content.Clone()
		el.Metadata.LastModified = e.now()
		return nil
	})
	if err == errNoop {
		return nil
	}
	if err != nil {
		return err
	}
	e.record(document.ChangeContent, sectionID, key, old.Value(), content.Value(), "")
	return nil
}

// SetElementProps merges props into an element's props. A nil value deletes
// the prop.
func (e *Engine) SetElementProps(ctx context.Context, sectionID, key string, props document.Props) error {
	const op = "set element props"
	var old, updated document.Props
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		old = el.Props.Clone()
		if el.Props == nil {
			el.Props = document.Props{}
		}
		for k, v := range props {
			if v == nil {
				delete(el.Props, k)
				continue
			}
			el.Props[k] = v
		}
		el.Metadata.LastModified = e.now()
		updated = el.Props.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	e.record(document.ChangeContent, sectionID, key, old, updated, "")
	return nil
}
