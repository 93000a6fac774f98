package toolbar

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/format"
)

// bound reports whether the inline editor is bound to the selected element.
// An editor bound to a different element does not count.
func (d *Dispatcher) bound(sel format.Selection) bool {
	return d.inline != nil && d.inline.Coordinator().BoundTo(sel.SectionID, sel.ElementKey)
}

func (d *Dispatcher) textSelection(op string, p Params) (format.Selection, error) {
	sectionID, key, err := selection(op, p)
	if err != nil {
		return format.Selection{}, err
	}
	return format.Selection{SectionID: sectionID, ElementKey: key}, nil
}

func (d *Dispatcher) applyTextFormat(ctx context.Context, p Params) (bool, error) {
	const op = "apply text format"
	sel, err := d.textSelection(op, p)
	if err != nil {
		return false, err
	}
	action, ok := format.ParseAction(p.String("format"))
	if !ok || !action.Toggle() {
		return false, invalid(op, sel.SectionID, sel.ElementKey, "format must be bold, italic or underline")
	}
	on, err := p.Bool("active")
	if err != nil {
		return false, invalid(op, sel.SectionID, sel.ElementKey, "%v", err)
	}
	if d.bound(sel) {
		return d.inline.ApplyTextFormat(ctx, sel, action, on)
	}
	return d.paintText(ctx, op, sel, []format.Command{{Action: action, Value: on}})
}

// textStyle builds the handler for a single-value text action. When options
// is non-nil and the parameter is missing, the value is chosen from options.
func (d *Dispatcher) textStyle(action format.Action, param string, options []string) handler {
	op := "change " + strings.ReplaceAll(action.CSSProperty(), "-", " ")
	return func(ctx context.Context, p Params) (bool, error) {
		sel, err := d.textSelection(op, p)
		if err != nil {
			return false, err
		}
		value := p.String(param)
		if value == "" {
			value = p.String(action.Field())
		}
		if value == "" && options != nil {
			value, err = d.choose(ctx, op, p, param, "Select "+strings.ReplaceAll(action.CSSProperty(), "-", " "), options, false)
			if err != nil {
				return false, err
			}
		}
		if d.bound(sel) {
			return d.inlineApply(ctx, sel, action, value)
		}
		return d.paintText(ctx, op, sel, []format.Command{{Action: action, Value: value}})
	}
}

func (d *Dispatcher) inlineApply(ctx context.Context, sel format.Selection, action format.Action, value string) (bool, error) {
	a := d.inline
	switch action {
	case format.Color:
		return a.ChangeTextColor(ctx, sel, value)
	case format.Size:
		return a.ChangeFontSize(ctx, sel, value)
	case format.Align:
		return a.ChangeTextAlign(ctx, sel, value)
	case format.Font:
		return a.ChangeFontFamily(ctx, sel, value)
	case format.LineHeight:
		return a.ChangeLineHeight(ctx, sel, value)
	case format.LetterSpacing:
		return a.ChangeLetterSpacing(ctx, sel, value)
	case format.Transform:
		return a.ChangeTextTransform(ctx, sel, value)
	}
	return false, fmt.Errorf("no inline handler for %s", action)
}

func (d *Dispatcher) clearFormatting(ctx context.Context, p Params) (bool, error) {
	const op = "clear formatting"
	sel, err := d.textSelection(op, p)
	if err != nil {
		return false, err
	}
	if d.bound(sel) {
		return d.inline.ClearFormatting(ctx, sel)
	}
	if _, err := d.engine.GetElement(ctx, sel.SectionID, sel.ElementKey); err != nil {
		return false, err
	}
	css := make(map[string]string, len(format.Actions()))
	props := make(document.Props, len(format.Actions()))
	for _, a := range format.Actions() {
		css[a.CSSProperty()] = ""
		props[propName(a.CSSProperty())] = nil
	}
	if err := d.paint(ctx, op, sel.SectionID, sel.ElementKey, css); err != nil {
		return false, err
	}
	if err := d.engine.SetElementProps(ctx, sel.SectionID, sel.ElementKey, props); err != nil {
		return false, err
	}
	d.store.MarkAsCustomized(sel.SectionID)
	d.announce("All formatting cleared")
	return true, nil
}

// applyBatchFormat applies a named preset or a map of format values. Keys may
// be action ids ("line-height") or state fields ("lineHeight").
func (d *Dispatcher) applyBatchFormat(ctx context.Context, p Params) (bool, error) {
	const op = "apply batch format"
	sel, err := d.textSelection(op, p)
	if err != nil {
		return false, err
	}
	var cmds []format.Command
	if name := p.String("preset"); name != "" {
		preset, ok := format.LookupPreset(name)
		if !ok {
			return false, invalid(op, sel.SectionID, sel.ElementKey, "unknown preset %q", name)
		}
		cmds = preset.Commands
	} else {
		formats := p.Map("formats")
		if len(formats) == 0 {
			return false, invalid(op, sel.SectionID, sel.ElementKey, "preset or formats is required")
		}
		keys := make([]string, 0, len(formats))
		for k := range formats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a, ok := format.ParseAction(k)
			if !ok {
				return false, invalid(op, sel.SectionID, sel.ElementKey, "unknown format %q", k)
			}
			cmds = append(cmds, format.Command{Action: a, Value: formats[k]})
		}
	}
	if d.bound(sel) {
		return d.inline.ApplyBatchFormat(ctx, sel, cmds)
	}
	return d.paintText(ctx, op, sel, cmds)
}

// paintText is the unbound path: validate every command, paint the styles
// onto the rendered element, persist them as element props and mark the
// section customized.
func (d *Dispatcher) paintText(ctx context.Context, op string, sel format.Selection, cmds []format.Command) (bool, error) {
	css := make(map[string]string, len(cmds))
	props := make(document.Props, len(cmds))
	for _, cmd := range cmds {
		v, err := format.Normalize(cmd.Action, cmd.Value)
		if err != nil {
			d.announce(format.InvalidMessage(cmd.Action))
			return false, &elements.Error{Code: elements.CodeValidation, Op: op, Section: sel.SectionID, Element: sel.ElementKey, Err: err}
		}
		prop := cmd.Action.CSSProperty()
		css[prop] = format.CSSValue(cmd.Action, v)
		props[propName(prop)] = css[prop]
	}
	if _, err := d.engine.GetElement(ctx, sel.SectionID, sel.ElementKey); err != nil {
		return false, err
	}
	if err := d.paint(ctx, op, sel.SectionID, sel.ElementKey, css); err != nil {
		return false, err
	}
	if err := d.engine.SetElementProps(ctx, sel.SectionID, sel.ElementKey, props); err != nil {
		return false, err
	}
	d.store.MarkAsCustomized(sel.SectionID)
	return true, nil
}

// paint applies styles to the rendered element when a style applier is set.
// Empty values remove the property.
func (d *Dispatcher) paint(ctx context.Context, op, sectionID, key string, css map[string]string) error {
	if d.styles == nil {
		return nil
	}
	if err := d.styles.Apply(ctx, capability.ElementSelector(sectionID, key), css); err != nil {
		return &elements.Error{Code: elements.CodeFault, Op: op, Section: sectionID, Element: key, Err: err}
	}
	return nil
}

func (d *Dispatcher) regenerateElement(ctx context.Context, p Params) (bool, error) {
	const op = "regenerate element"
	sectionID, key, err := selection(op, p)
	if err != nil {
		return false, err
	}
	if d.regen == nil {
		return false, notSupported(op)
	}
	if _, err := d.engine.GetElement(ctx, sectionID, key); err != nil {
		return false, err
	}
	if err := d.regen.RegenerateElement(ctx, sectionID, key); err != nil {
		return false, &elements.Error{Code: elements.CodeFault, Op: op, Section: sectionID, Element: key, Err: err}
	}
	return true, nil
}

// propName turns a CSS property into the element prop that stores it:
// "font-size" becomes "fontSize".
func propName(css string) string {
	parts := strings.Split(css, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
