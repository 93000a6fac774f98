package toolbar

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/security"
)

// FieldType is one entry of the add-field list.
type FieldType struct {
	ID    string
	Label string
}

// FieldTypes lists the form field types in picker order.
var FieldTypes = []FieldType{
	{"text", "Text Input"},
	{"email", "Email Address"},
	{"tel", "Phone Number"},
	{"textarea", "Message"},
	{"select", "Select Option"},
	{"checkbox", "Checkbox"},
	{"radio", "Radio Button"},
	{"file", "File Upload"},
	{"date", "Date"},
	{"url", "Website URL"},
}

// FormIntegrations lists the integrations a form can be connected to.
var FormIntegrations = []string{"hubspot", "mailchimp", "zapier", "webhook", "email", "slack"}

// FormStyleAspects lists the form-styling options.
var FormStyleAspects = []string{"theme", "colors", "spacing", "typography", "buttons", "fields"}

var formSettingKeys = []string{"submitText", "action", "successMessage"}

func (d *Dispatcher) form(ctx context.Context, op string, p Params) (*document.Element, error) {
	sectionID, key := p.Section(), p.Element()
	if key == "" {
		key = p.String("formId")
	}
	if sectionID == "" || key == "" {
		return nil, invalid(op, sectionID, key, "sectionId and elementKey are required")
	}
	el, err := d.engine.GetElement(ctx, sectionID, key)
	if err != nil {
		return nil, err
	}
	if el.Type != document.TypeForm {
		return nil, invalid(op, sectionID, key, "element is a %s, not a form", el.Type)
	}
	return el, nil
}

// fieldsOf returns the form's field list. Entries that are not objects are
// dropped.
func fieldsOf(el *document.Element) []any {
	raw, _ := el.Props["fields"].([]any)
	out := make([]any, 0, len(raw))
	for _, f := range raw {
		if _, ok := f.(map[string]any); ok {
			out = append(out, f)
		}
	}
	return out
}

func fieldIndex(fields []any, id string) int {
	for i, f := range fields {
		if m := f.(map[string]any); m["id"] == id {
			return i
		}
	}
	return -1
}

func (d *Dispatcher) addField(ctx context.Context, p Params) (bool, error) {
	const op = "add field"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	ids := make([]string, len(FieldTypes))
	for i, ft := range FieldTypes {
		ids[i] = ft.ID
	}
	typ, err := d.choose(ctx, op, p, "fieldType", "Select field type", ids, true)
	if err != nil {
		return false, err
	}
	label := p.String("label")
	if label == "" {
		for _, ft := range FieldTypes {
			if ft.ID == typ {
				label = ft.Label
			}
		}
	}

	field := map[string]any{
		"id":          "field-" + strings.ToLower(ulid.Make().String()),
		"type":        typ,
		"label":       label,
		"placeholder": fmt.Sprintf("Enter %s...", strings.ToLower(label)),
		"required":    false,
		"validation":  map[string]any{},
	}
	if typ == "select" || typ == "radio" {
		field["options"] = []any{"Option 1", "Option 2"}
	}
	fields := append(fieldsOf(el), field)
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"fields": fields}); err != nil {
		return false, err
	}
	d.announce(fmt.Sprintf("Added %s field", label))
	return true, nil
}

func (d *Dispatcher) removeField(ctx context.Context, p Params) (bool, error) {
	const op = "remove field"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	id := p.String("fieldId")
	fields := fieldsOf(el)
	i := fieldIndex(fields, id)
	if i < 0 {
		return false, &elements.Error{Code: elements.CodeNotFound, Op: op, Section: el.SectionID, Element: el.Key, Err: fmt.Errorf("field %q not found", id)}
	}
	if err := d.confirm(ctx, op, el.SectionID, el.Key, "Are you sure you want to remove this field?"); err != nil {
		return false, err
	}
	fields = append(fields[:i], fields[i+1:]...)
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"fields": fields}); err != nil {
		return false, err
	}
	d.announce("Field removed")
	return true, nil
}

func (d *Dispatcher) toggleFieldRequired(ctx context.Context, p Params) (bool, error) {
	const op = "toggle field required"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	id := p.String("fieldId")
	fields := fieldsOf(el)
	i := fieldIndex(fields, id)
	if i < 0 {
		return false, &elements.Error{Code: elements.CodeNotFound, Op: op, Section: el.SectionID, Element: el.Key, Err: fmt.Errorf("field %q not found", id)}
	}
	field := fields[i].(map[string]any)
	required, _ := field["required"].(bool)
	field["required"] = !required
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"fields": fields}); err != nil {
		return false, err
	}
	return true, nil
}

// formSettings updates submitText, action and successMessage, given either
// at the top level or under "settings". Without any it only acknowledges.
func (d *Dispatcher) formSettings(ctx context.Context, p Params) (bool, error) {
	const op = "form settings"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	settings := p.Map("settings")
	props := document.Props{}
	for _, k := range formSettingKeys {
		if v, ok := settings[k]; ok {
			props[k] = v
		} else if p.Has(k) {
			props[k] = p[k]
		}
	}
	if len(props) == 0 {
		return true, nil
	}
	for k, v := range props {
		if _, ok := v.(string); !ok {
			return false, invalid(op, el.SectionID, el.Key, "%s must be a string", k)
		}
	}
	if action, _ := props["action"].(string); action != "" {
		if err := security.ValidateLinkURL(action); err != nil {
			return false, invalid(op, el.SectionID, el.Key, "action: %v", err)
		}
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, props); err != nil {
		return false, err
	}
	return true, nil
}

// formIntegrations connects the form to one integration. Connecting an
// integration twice is a no-op.
func (d *Dispatcher) formIntegrations(ctx context.Context, p Params) (bool, error) {
	const op = "form integrations"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	name, err := d.choose(ctx, op, p, "integration", "Select integration", FormIntegrations, true)
	if err != nil {
		return false, err
	}
	current, _ := el.Props["integrations"].([]any)
	for _, v := range current {
		if v == name {
			return false, nil
		}
	}
	updated := append(append([]any(nil), current...), name)
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"integrations": updated}); err != nil {
		return false, err
	}
	d.announce(fmt.Sprintf("Connected %s integration", name))
	return true, nil
}

func (d *Dispatcher) formStyling(ctx context.Context, p Params) (bool, error) {
	const op = "form styling"
	el, err := d.form(ctx, op, p)
	if err != nil {
		return false, err
	}
	aspect, err := d.choose(ctx, op, p, "aspect", "Select styling option", FormStyleAspects, true)
	if err != nil {
		return false, err
	}
	style, _ := el.Props["style"].(map[string]any)
	values := p.Map("values")
	if len(values) == 0 {
		// Nothing to store yet; the client opens the editor for aspect.
		return true, nil
	}
	updated := make(map[string]any, len(style)+1)
	for k, v := range style {
		updated[k] = v
	}
	updated[aspect] = values
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"style": updated}); err != nil {
		return false, err
	}
	return true, nil
}
