package toolbar

import (
	"context"
	"sort"
	"strings"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/security"
)

// Conversions lists the types change-element-type offers.
var Conversions = []string{
	string(document.TypeText),
	string(document.TypeHeadline),
	string(document.TypeSubheadline),
	string(document.TypeButton),
	string(document.TypeRichText),
	string(document.TypeList),
}

func (d *Dispatcher) duplicateElement(ctx context.Context, p Params) (bool, error) {
	sectionID, key, err := selection("duplicate element", p)
	if err != nil {
		return false, err
	}
	_, err = d.engine.DuplicateElement(ctx, sectionID, key, elements.DuplicateOptions{})
	return err == nil, err
}

func (d *Dispatcher) deleteElement(ctx context.Context, p Params) (bool, error) {
	sectionID, key, err := selection("delete element", p)
	if err != nil {
		return false, err
	}
	return d.engine.RemoveElement(ctx, sectionID, key, elements.RemoveOptions{})
}

// elementStyle paints and persists a map of CSS properties. Without styles it
// only checks the element, leaving the style panel to the client.
func (d *Dispatcher) elementStyle(ctx context.Context, p Params) (bool, error) {
	const op = "element style"
	sectionID, key, err := selection(op, p)
	if err != nil {
		return false, err
	}
	if _, err := d.engine.GetElement(ctx, sectionID, key); err != nil {
		return false, err
	}
	styles := p.Map("styles")
	if len(styles) == 0 {
		return true, nil
	}

	names := make([]string, 0, len(styles))
	for prop := range styles {
		names = append(names, prop)
	}
	sort.Strings(names)
	css := make(map[string]string, len(styles))
	props := make(document.Props, len(styles))
	for _, prop := range names {
		v, ok := styles[prop].(string)
		if !ok && styles[prop] != nil {
			return false, invalid(op, sectionID, key, "style %s must be a string", prop)
		}
		if strings.ContainsAny(v, ";{}") {
			return false, invalid(op, sectionID, key, "style %s has an invalid value", prop)
		}
		css[prop] = v
		if v == "" {
			props[propName(prop)] = nil
		} else {
			props[propName(prop)] = v
		}
	}
	if err := d.paint(ctx, op, sectionID, key, css); err != nil {
		return false, err
	}
	if err := d.engine.SetElementProps(ctx, sectionID, key, props); err != nil {
		return false, err
	}
	d.store.MarkAsCustomized(sectionID)
	return true, nil
}

func (d *Dispatcher) changeElementType(ctx context.Context, p Params) (bool, error) {
	const op = "change element type"
	sectionID, key, err := selection(op, p)
	if err != nil {
		return false, err
	}
	if _, err := d.engine.GetElement(ctx, sectionID, key); err != nil {
		return false, err
	}
	if !p.Has("newType") && p.Has("type") {
		p = withParam(p, "newType", p.String("type"))
	}
	name, err := d.choose(ctx, op, p, "newType", "Change element type", Conversions, false)
	if err != nil {
		return false, err
	}
	t, ok := document.ParseElementType(name)
	if !ok {
		return false, invalid(op, sectionID, key, "unknown element type %q", name)
	}
	return d.engine.ConvertElementType(ctx, sectionID, key, t)
}

// convertCTAToForm turns a call-to-action button into a form element.
func (d *Dispatcher) convertCTAToForm(ctx context.Context, p Params) (bool, error) {
	const op = "convert cta to form"
	sectionID, key, err := selection(op, p)
	if err != nil {
		return false, err
	}
	el, err := d.engine.GetElement(ctx, sectionID, key)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(key)
	isCTA := el.Type == document.TypeButton || strings.Contains(lower, "cta") || strings.Contains(lower, "button")
	if !isCTA {
		return false, invalid(op, sectionID, key, "only call-to-action elements can become forms")
	}
	if _, err := d.engine.ConvertElementType(ctx, sectionID, key, document.TypeForm); err != nil {
		return false, err
	}
	if err := d.engine.UpdateElementContent(ctx, sectionID, key, document.TextContent("Contact Form")); err != nil {
		return false, err
	}
	return true, nil
}

// linkSettings attaches a validated link. Without a newTab parameter the
// confirmer decides whether the link opens in a new tab.
func (d *Dispatcher) linkSettings(ctx context.Context, p Params) (bool, error) {
	const op = "link settings"
	sectionID, key, err := selection(op, p)
	if err != nil {
		return false, err
	}
	href := p.String("url")
	if href == "" {
		href = p.String("href")
	}
	if err := security.ValidateLinkURL(href); err != nil {
		d.announce("Invalid link URL")
		return false, invalid(op, sectionID, key, "%v", err)
	}
	if _, err := d.engine.GetElement(ctx, sectionID, key); err != nil {
		return false, err
	}

	var newTab bool
	if p.Has("newTab") {
		if newTab, err = p.Bool("newTab"); err != nil {
			return false, invalid(op, sectionID, key, "%v", err)
		}
	} else if newTab, err = d.confirmer.Confirm(ctx, "Open in new tab?"); err != nil {
		return false, &elements.Error{Code: elements.CodeFault, Op: op, Section: sectionID, Element: key, Err: err}
	}

	props := document.Props{"href": strings.TrimSpace(href), "target": "_self", "rel": nil}
	if newTab {
		props["target"] = "_blank"
		props["rel"] = "noopener noreferrer"
	}
	if err := d.engine.SetElementProps(ctx, sectionID, key, props); err != nil {
		return false, err
	}
	d.store.MarkAsCustomized(sectionID)
	d.announce("Link updated")
	return true, nil
}

// withParam returns a copy of p with key set, leaving the caller's map alone.
func withParam(p Params, key string, value any) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}
