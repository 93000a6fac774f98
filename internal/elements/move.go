package elements

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
)

// ReorderElements assigns position i to order[i]. order must be a permutation
// of the section's keys.
func (e *Engine) ReorderElements(ctx context.Context, sectionID string, order []string) error {
	const op = "reorder elements"
	var before []string
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		if len(order) != len(sec.Elements) {
			return invalid(op, sectionID, "", "order has %d keys, section has %d elements", len(order), len(sec.Elements))
		}
		seen := make(map[string]bool, len(order))
		for _, key := range order {
			if _, ok := sec.Elements[key]; !ok {
				return invalid(op, sectionID, key, "order names unknown element")
			}
			if seen[key] {
				return invalid(op, sectionID, key, "order repeats element")
			}
			seen[key] = true
		}
		before = sec.Keys()
		now := e.now()
		for i, key := range order {
			el := sec.Elements[key]
			if el.Metadata.Position != i {
				el.Metadata.Position = i
				el.Metadata.LastModified = now
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.record(document.ChangeLayout, sectionID, "", before, append([]string(nil), order...),
		fmt.Sprintf("Reordered %d elements", len(order)))
	return nil
}

// MoveElementUp swaps an element with its predecessor. It returns false at
// position 0.
func (e *Engine) MoveElementUp(ctx context.Context, sectionID, key string) (bool, error) {
	return e.moveAdjacent(sectionID, key, -1)
}

// MoveElementDown swaps an element with its successor. It returns false at the
// last position.
func (e *Engine) MoveElementDown(ctx context.Context, sectionID, key string) (bool, error) {
	return e.moveAdjacent(sectionID, key, +1)
}

func (e *Engine) moveAdjacent(sectionID, key string, delta int) (bool, error) {
	op := "move element down"
	direction := "down"
	if delta < 0 {
		op = "move element up"
		direction = "up"
	}

	var moved *document.Element
	var from, to int
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		from = el.Metadata.Position
		to = from + delta
		if to < 0 || to >= len(sec.Elements) {
			return errNoop
		}
		other, ok := sec.At(to)
		if !ok {
			return conflict(op, sectionID, key, "no element holds position %d", to)
		}
		now := e.now()
		el.Metadata.Position, other.Metadata.Position = to, from
		el.Metadata.LastModified = now
		other.Metadata.LastModified = now
		moved = el
		return nil
	})
	if err == errNoop {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.record(document.ChangeLayout, sectionID, key, from, to,
		fmt.Sprintf("Moved %s element %s", moved.Type, direction))
	return true, nil
}

// MoveElementToPosition re-ranks an element. Siblings between the old and new
// position shift by one toward the gap. Moving to the current position returns
// false.
func (e *Engine) MoveElementToPosition(ctx context.Context, sectionID, key string, target int) (bool, error) {
	const op = "move element to position"
	var moved *document.Element
	var from int
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		if target < 0 || target >= len(sec.Elements) {
			return invalid(op, sectionID, key, "target position %d outside 0..%d", target, len(sec.Elements)-1)
		}
		from = el.Metadata.Position
		if from == target {
			return errNoop
		}
		now := e.now()
		for _, other := range sec.Elements {
			p := other.Metadata.Position
			switch {
			case other == el:
				continue
			case from < target && p > from && p <= target:
				other.Metadata.Position--
			case from > target && p >= target && p < from:
				other.Metadata.Position++
			default:
				continue
			}
			other.Metadata.LastModified = now
		}
		el.Metadata.Position = target
		el.Metadata.LastModified = now
		moved = el
		return nil
	})
	if err == errNoop {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.record(document.ChangeLayout, sectionID, key, from, target,
		fmt.Sprintf("Moved %s element to position %d", moved.Type, target+1))
	return true, nil
}

// MoveElementToSection moves an element into another section. The element is
// appended unless position is given. Neither section is re-ranked, so an
// explicit position may collide with an existing rank in the destination.
func (e *Engine) MoveElementToSection(ctx context.Context, fromID, toID, key string, position *int) (bool, error) {
	const op = "move element to section"
	if fromID == toID {
		return false, invalid(op, fromID, key, "source and destination are the same section")
	}
	if position != nil && *position < 0 {
		return false, invalid(op, toID, key, "position %d is negative", *position)
	}

	unlock := e.locks.lock(fromID, toID)
	defer unlock()

	src, ok := e.store.Section(fromID)
	if !ok {
		return false, sectionNotFound(op, fromID)
	}
	dst, ok := e.store.Section(toID)
	if !ok {
		return false, sectionNotFound(op, toID)
	}
	el, ok := src.Elements[key]
	if !ok {
		return false, elementNotFound(op, fromID, key)
	}
	if _, exists := dst.Elements[key]; exists {
		return false, conflict(op, toID, key, "element key already in use")
	}

	target := len(dst.Elements)
	if position != nil {
		target = *position
	}
	original := dst.Clone()

	delete(src.Elements, key)
	el.SectionID = toID
	el.Metadata.Position = target
	el.Metadata.LastModified = e.now()
	dst.Elements[key] = el
	e.warnUnranked(op, dst, key)

	if err := e.commit(op, dst); err != nil {
		return false, err
	}
	if err := e.commit(op, src); err != nil {
		if rerr := e.commit(op, original); rerr != nil {
			e.logger.Error("rollback after failed move left element in both sections",
				zap.String("section", toID),
				zap.String("element", key),
				zap.Error(rerr))
		}
		return false, err
	}

	e.record(document.ChangeLayout, toID, key,
		map[string]any{"sectionId": fromID},
		map[string]any{"sectionId": toID, "position": target},
		fmt.Sprintf("Moved %s element to different section", el.Type))
	return true, nil
}

// CopyElementToSection copies an element into another section with a new id
// and key, and returns the new key. Like MoveElementToSection it appends by
// default and never re-ranks.
func (e *Engine) CopyElementToSection(ctx context.Context, fromID, toID, key string, position *int) (string, error) {
	const op = "copy element to section"
	if position != nil && *position < 0 {
		return "", invalid(op, toID, key, "position %d is negative", *position)
	}

	src, ok := e.store.Section(fromID)
	if !ok {
		return "", sectionNotFound(op, fromID)
	}
	orig, ok := src.Elements[key]
	if !ok {
		return "", elementNotFound(op, fromID, key)
	}

	var cp *document.Element
	err := e.mutate(op, toID, func(dst *document.Section) error {
		target := len(dst.Elements)
		if position != nil {
			target = *position
		}
		now := e.now()
		cp = orig.Clone()
		cp.ID = e.ids.id(now)
		cp.Key = e.ids.uniqueKey(orig.Type, target, now, dst.Elements)
		cp.SectionID = toID
		cp.Metadata.Position = target
		cp.Metadata.AddedAt = now
		cp.Metadata.LastModified = now
		cp.Metadata.Version = 1
		resetEditState(cp)
		dst.Elements[cp.Key] = cp
		e.warnUnranked(op, dst, cp.Key)
		return nil
	})
	if err != nil {
		return "", err
	}

	e.record(document.ChangeContent, toID, cp.Key,
		map[string]any{"sectionId": fromID, "elementKey": key},
		map[string]any{"op": "element-copy", "element": cp.Clone()},
		fmt.Sprintf("Copied %s element to different section", cp.Type))
	return cp.Key, nil
}

// warnUnranked logs when a cross-section insert leaves the destination without
// dense positions.
func (e *Engine) warnUnranked(op string, sec *document.Section, key string) {
	if sec.Dense() {
		return
	}
	e.logger.Warn("cross-section insert left positions unranked",
		zap.String("op", op),
		zap.String("section", sec.ID),
		zap.String("element", key))
}

// CompactPositions renumbers a section's elements to 0..N-1 keeping their
// relative order, ties broken by key. It returns how many elements moved.
func (e *Engine) CompactPositions(ctx context.Context, sectionID string) (int, error) {
	const op = "compact positions"
	var changed int
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		now := e.now()
		for i, el := range sec.Ordered() {
			if el.Metadata.Position != i {
				el.Metadata.Position = i
				el.Metadata.LastModified = now
				changed++
			}
		}
		if changed == 0 {
			return errNoop
		}
		return nil
	})
	if err == errNoop {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	e.record(document.ChangeLayout, sectionID, "", nil, changed, "")
	return changed, nil
}
