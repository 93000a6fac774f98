package toolbar

import (
	"context"
	"errors"
	"fmt"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/picker"
)

func (d *Dispatcher) section(op string, p Params) (*document.Section, error) {
	id := p.Section()
	if id == "" {
		return nil, invalid(op, "", "", "sectionId is required")
	}
	sec, ok := d.store.Section(id)
	if !ok {
		return nil, &elements.Error{Code: elements.CodeNotFound, Op: op, Section: id, Err: document.ErrSectionNotFound}
	}
	return sec, nil
}

// lockSection takes the engine's writer lock for the section named in p and
// any extra ids, then reads the section under it.
func (d *Dispatcher) lockSection(op string, p Params, extra ...string) (*document.Section, func(), error) {
	id := p.Section()
	if id == "" {
		return nil, nil, invalid(op, "", "", "sectionId is required")
	}
	unlock := d.engine.LockSections(append([]string{id}, extra...)...)
	sec, err := d.section(op, p)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return sec, unlock, nil
}

func storeError(op, sectionID string, err error) error {
	code := elements.CodeFault
	if errors.Is(err, document.ErrSectionNotFound) {
		code = elements.CodeNotFound
	}
	return &elements.Error{Code: code, Op: op, Section: sectionID, Err: err}
}

func (d *Dispatcher) changeLayout(ctx context.Context, p Params) (bool, error) {
	const op = "change layout"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	var known []string
	if d.layouts != nil {
		known = d.layouts()
	}
	var layout string
	if len(known) > 0 {
		layout, err = d.choose(ctx, op, p, "layout", "Select layout", known, true)
	} else {
		layout = p.String("layout")
		if layout == "" {
			err = invalid(op, sec.ID, "", "layout is required")
		}
	}
	if err != nil {
		return false, err
	}

	sec, unlock, err := d.lockSection(op, p)
	if err != nil {
		return false, err
	}
	defer unlock()
	if layout == sec.Layout {
		return false, nil
	}
	if err := d.store.SetSection(sec.ID, document.SectionPatch{Layout: &layout}); err != nil {
		return false, storeError(op, sec.ID, err)
	}
	d.store.TrackChange(document.ChangeEntry{
		Type:      document.ChangeLayout,
		SectionID: sec.ID,
		OldValue:  map[string]any{"layout": sec.Layout},
		NewValue:  map[string]any{"layout": layout},
		Source:    d.source,
	})
	d.announce("Layout changed to " + layout)
	return true, nil
}

// addElement inserts elementType when given, otherwise opens the picker, and
// without a picker asks the chooser for a type.
func (d *Dispatcher) addElement(ctx context.Context, p Params) (bool, error) {
	const op = "add element"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	typ := p.String("elementType")
	if typ == "" {
		typ = p.String("type")
	}
	var position *int
	if n, ok, err := p.Int("index"); err != nil {
		return false, invalid(op, sec.ID, "", "%v", err)
	} else if ok {
		position = &n
	}

	if typ == "" && d.picker != nil {
		var anchor picker.Position
		if m := p.Map("position"); m != nil {
			anchor.X, _ = m["x"].(float64)
			anchor.Y, _ = m["y"].(float64)
		}
		err := d.picker.Show(sec.ID, anchor, picker.Options{
			AutoFocus:  true,
			Categories: []elements.Category{elements.CategoryText, elements.CategoryInteractive, elements.CategoryMedia},
			Position:   position,
		})
		return err == nil, err
	}
	if typ == "" {
		types := make([]string, 0, len(document.ElementTypes()))
		for _, t := range document.ElementTypes() {
			types = append(types, string(t))
		}
		if typ, err = d.choose(ctx, op, p, "elementType", "Add element", types, true); err != nil {
			return false, err
		}
	}

	_, err = d.engine.AddElement(ctx, sec.ID, typ, elements.AddOptions{AutoFocus: true, Position: position})
	return err == nil, err
}

func (d *Dispatcher) moveSection(_ context.Context, p Params) (bool, error) {
	const op = "move section"
	sec, unlock, err := d.lockSection(op, p)
	if err != nil {
		return false, err
	}
	defer unlock()
	var delta int
	switch p.String("direction") {
	case "up":
		delta = -1
	case "down":
		delta = 1
	default:
		return false, invalid(op, sec.ID, "", "direction must be up or down")
	}
	moved, err := d.store.MoveSection(sec.ID, delta)
	if err != nil {
		return false, storeError(op, sec.ID, err)
	}
	if moved {
		d.announce(fmt.Sprintf("Moved section %s %s", sec.ID, p.String("direction")))
	}
	return moved, nil
}

// backgroundSettings sets the section background when one is given. Without
// one it only acknowledges, leaving the settings panel to the client.
func (d *Dispatcher) backgroundSettings(_ context.Context, p Params) (bool, error) {
	const op = "background settings"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	bg := p.String("background")
	if bg == "" {
		return true, nil
	}
	sec, unlock, err := d.lockSection(op, p)
	if err != nil {
		return false, err
	}
	defer unlock()
	if err := d.store.SetSection(sec.ID, document.SectionPatch{Background: &bg}); err != nil {
		return false, storeError(op, sec.ID, err)
	}
	d.store.MarkAsCustomized(sec.ID)
	d.store.TrackChange(document.ChangeEntry{
		Type:      document.ChangeLayout,
		SectionID: sec.ID,
		OldValue:  map[string]any{"background": sec.Background},
		NewValue:  map[string]any{"background": bg},
		Source:    d.source,
	})
	return true, nil
}

func (d *Dispatcher) regenerateSection(ctx context.Context, p Params) (bool, error) {
	const op = "regenerate section"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	if d.regen == nil {
		return false, notSupported(op)
	}
	if err := d.regen.RegenerateSection(ctx, sec.ID, p.String("userGuidance")); err != nil {
		return false, &elements.Error{Code: elements.CodeFault, Op: op, Section: sec.ID, Err: err}
	}
	return true, nil
}

func (d *Dispatcher) duplicateSection(_ context.Context, p Params) (bool, error) {
	const op = "duplicate section"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	newID := p.String("newId")
	if newID == "" {
		newID = sec.ID + "-copy"
		for n := 2; ; n++ {
			if _, taken := d.store.Section(newID); !taken {
				break
			}
			newID = fmt.Sprintf("%s-copy-%d", sec.ID, n)
		}
	}
	sec, unlock, err := d.lockSection(op, p, newID)
	if err != nil {
		return false, err
	}
	defer unlock()
	if _, taken := d.store.Section(newID); taken {
		return false, &elements.Error{Code: elements.CodeConflict, Op: op, Section: newID, Err: errors.New("section already exists")}
	}
	if err := d.store.DuplicateSection(sec.ID, newID); err != nil {
		return false, storeError(op, sec.ID, err)
	}
	d.announce("Duplicated section " + sec.ID)
	return true, nil
}

func (d *Dispatcher) deleteSection(ctx context.Context, p Params) (bool, error) {
	const op = "delete section"
	sec, err := d.section(op, p)
	if err != nil {
		return false, err
	}
	if err := d.confirm(ctx, op, sec.ID, "", "Are you sure you want to delete this section?"); err != nil {
		return false, err
	}
	sec, unlock, err := d.lockSection(op, p)
	if err != nil {
		return false, err
	}
	defer unlock()
	if err := d.store.RemoveSection(sec.ID); err != nil {
		return false, storeError(op, sec.ID, err)
	}
	d.announce("Deleted section " + sec.ID)
	return true, nil
}
