package elements

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
)

// InsertMode places a new element relative to a reference element.
type InsertMode string

const (
	InsertBefore InsertMode = "before"
	InsertAfter  InsertMode = "after"
)

// AddOptions tunes AddElement. The zero value appends a catalog-default element.
type AddOptions struct {
	// Key overrides the generated element key.
	Key     string
	Content *document.Content
	// Props overlay the type's default props.
	Props document.Props
	// Position is an explicit target rank, clamped to 0..len(existing).
	Position *int
	// InsertMode with ReferenceKey places the element before or after another.
	InsertMode   InsertMode
	ReferenceKey string
	AutoFocus    bool
}

// DuplicateOptions tunes DuplicateElement. The zero value copies content and
// props and inserts right after the original.
type DuplicateOptions struct {
	NewKey         string
	TargetPosition *int
	// ResetContent replaces the copy's content with the type default.
	ResetContent bool
	// ResetProps replaces the copy's props with the type defaults.
	ResetProps bool
}

// resolved is what addElement needs to know about typeOrName.
type resolved struct {
	typ      document.ElementType
	optional bool
	name     string
}

func resolve(typeOrName string) (resolved, error) {
	if typeOrName == "" {
		return resolved{}, fmt.Errorf("element type or name is required")
	}
	if t, ok := document.ParseElementType(typeOrName); ok {
		return resolved{typ: t}, nil
	}
	return resolved{typ: Classify(typeOrName), optional: true, name: typeOrName}, nil
}

// AddElement inserts a new element and returns its key.
//
// typeOrName is either a catalog type ("text", "image") or a layout slot name
// ("badge_text"), in which case the type is inferred with Classify, the slot
// name becomes the key, and the layout schema decides the position. Existing
// elements at or after the target position shift right by one.
func (e *Engine) AddElement(ctx context.Context, sectionID, typeOrName string, opts AddOptions) (string, error) {
	const op = "add element"
	r, err := resolve(typeOrName)
	if err != nil {
		return "", newError(CodeValidation, op, sectionID, "", err)
	}
	def, _ := Lookup(r.typ)

	var key string
	var el *document.Element
	err = e.mutate(op, sectionID, func(sec *document.Section) error {
		n := len(sec.Elements)
		position := n

		switch {
		case opts.InsertMode != "" && opts.ReferenceKey != "":
			ref, ok := sec.Elements[opts.ReferenceKey]
			if !ok {
				return elementNotFound(op, sectionID, opts.ReferenceKey)
			}
			position = ref.Metadata.Position
			switch opts.InsertMode {
			case InsertAfter:
				position++
			case InsertBefore:
			default:
				return invalid(op, sectionID, "", "unknown insert mode %q", opts.InsertMode)
			}
		case opts.Position != nil:
			if *opts.Position < 0 {
				return invalid(op, sectionID, "", "position %d is negative", *opts.Position)
			}
			position = *opts.Position
		case r.optional:
			position = e.schemaSlot(sec, r.name)
		}
		position = clamp(position, 0, n)

		now := e.now()
		switch {
		case opts.Key != "":
			key = opts.Key
		case r.optional:
			key = r.name
		default:
			key = e.ids.uniqueKey(r.typ, position, now, sec.Elements)
		}
		if _, exists := sec.Elements[key]; exists {
			return conflict(op, sectionID, key, "element key already in use")
		}

		content := def.DefaultContent
		if opts.Content != nil {
			content = opts.Content.Clone()
		}
		el = &document.Element{
			ID:        e.ids.id(now),
			Key:       key,
			SectionID: sectionID,
			Type:      r.typ,
			Content:   content,
			Props:     def.DefaultProps.Merge(opts.Props),
			Metadata: document.Metadata{
				AddedManually:       true,
				AddedAt:             now,
				LastModified:        now,
				Position:            position,
				Version:             1,
				IsOptional:          r.optional,
				OptionalElementName: r.name,
			},
			Validation: freshValidation(),
		}

		shiftFrom(sec, position)
		sec.Elements[key] = el
		return nil
	})
	if err != nil {
		return "", err
	}

	e.logger.Debug("element added",
		zap.String("section", sectionID),
		zap.String("element", key),
		zap.String("type", string(r.typ)),
		zap.Int("position", el.Metadata.Position))
	e.record(document.ChangeContent, sectionID, key, nil, map[string]any{
		"op":      "element-add",
		"element": el.Clone(),
	}, fmt.Sprintf("Added %s element", r.typ))

	if opts.AutoFocus {
		e.scheduleFocus(sectionID, key)
	}
	return key, nil
}

// schemaSlot returns the canonical position of a layout slot: its index in the
// layout schema, capped at the current element count. A layout the schema
// source does not know, or a failing source, appends.
func (e *Engine) schemaSlot(sec *document.Section, name string) int {
	n := len(sec.Elements)
	if e.schemas == nil || sec.Layout == "" {
		return n
	}
	elems, err := e.schemas.LayoutElements(sec.Layout)
	if err != nil {
		e.logger.Warn("layout schema lookup failed, appending",
			zap.String("section", sec.ID),
			zap.String("layout", sec.Layout),
			zap.Error(err))
		return n
	}
	idx := schemaIndex(elems, name)
	if idx < 0 {
		return n
	}
	return min(idx, n)
}

// DuplicateElement copies an element into the same section with a new id and
// key, and returns the new key.
func (e *Engine) DuplicateElement(ctx context.Context, sectionID, key string, opts DuplicateOptions) (string, error) {
	const op = "duplicate element"
	var dup *document.Element
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		orig, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		n := len(sec.Elements)
		target := orig.Metadata.Position + 1
		if opts.TargetPosition != nil {
			if *opts.TargetPosition < 0 {
				return invalid(op, sectionID, key, "target position %d is negative", *opts.TargetPosition)
			}
			target = *opts.TargetPosition
		}
		target = clamp(target, 0, n)

		now := e.now()
		newKey := opts.NewKey
		if newKey == "" {
			newKey = e.ids.uniqueKey(orig.Type, target, now, sec.Elements)
		}
		if _, exists := sec.Elements[newKey]; exists {
			return conflict(op, sectionID, newKey, "element key already in use")
		}

		dup = orig.Clone()
		dup.ID = e.ids.id(now)
		dup.Key = newKey
		dup.Metadata.AddedAt = now
		dup.Metadata.LastModified = now
		dup.Metadata.Position = target
		dup.Metadata.Version = 1
		resetEditState(dup)

		def, _ := Lookup(orig.Type)
		if opts.ResetContent {
			dup.Content = def.DefaultContent
		}
		if opts.ResetProps {
			dup.Props = def.DefaultProps
		}

		shiftFrom(sec, target)
		sec.Elements[newKey] = dup
		return nil
	})
	if err != nil {
		return "", err
	}

	e.record(document.ChangeContent, sectionID, dup.Key, nil, map[string]any{
		"op":        "element-duplicate",
		"sourceKey": key,
		"element":   dup.Clone(),
	}, fmt.Sprintf("Duplicated %s element", dup.Type))
	return dup.Key, nil
}
