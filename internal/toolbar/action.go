package toolbar

import (
	"fmt"
	"strconv"
	"strings"
)

// Action identifies one toolbar command.
type Action string

// Group is the toolbar an action belongs to.
type Group string

const (
	GroupSection Group = "section"
	GroupText    Group = "text"
	GroupElement Group = "element"
	GroupImage   Group = "image"
	GroupForm    Group = "form"
)

const (
	ChangeLayout       Action = "change-layout"
	AddElement         Action = "add-element"
	MoveSection        Action = "move-section"
	BackgroundSettings Action = "background-settings"
	RegenerateSection  Action = "regenerate-section"
	DuplicateSection   Action = "duplicate-section"
	DeleteSection      Action = "delete-section"

	ApplyTextFormat     Action = "apply-text-format"
	ChangeTextColor     Action = "change-text-color"
	ChangeFontSize      Action = "change-font-size"
	ChangeTextAlign     Action = "change-text-align"
	ChangeFontFamily    Action = "change-font-family"
	ChangeLineHeight    Action = "change-line-height"
	ChangeLetterSpacing Action = "change-letter-spacing"
	ChangeTextTransform Action = "change-text-transform"
	ClearFormatting     Action = "clear-formatting"
	ApplyBatchFormat    Action = "apply-batch-format"
	TextRegenerate      Action = "text-regenerate"

	DuplicateElement  Action = "duplicate-element"
	DeleteElement     Action = "delete-element"
	ElementStyle      Action = "element-style"
	ChangeElementType Action = "change-element-type"
	ConvertCTAToForm  Action = "convert-cta-to-form"
	LinkSettings      Action = "link-settings"
	ElementRegenerate Action = "element-regenerate"

	ReplaceImage Action = "replace-image"
	StockPhotos  Action = "stock-photos"
	EditImage    Action = "edit-image"
	AltText      Action = "alt-text"
	ImageFilters Action = "image-filters"
	Optimize     Action = "optimize"
	DeleteImage  Action = "delete-image"

	AddField      Action = "add-field"
	RemoveField   Action = "remove-field"
	FieldRequired Action = "field-required"
	FormSettings  Action = "form-settings"
	Integrations  Action = "integrations"
	FormStyling   Action = "form-styling"
)

var groups = []struct {
	group   Group
	actions []Action
}{
	{GroupSection, []Action{ChangeLayout, AddElement, MoveSection, BackgroundSettings, RegenerateSection, DuplicateSection, DeleteSection}},
	{GroupText, []Action{ApplyTextFormat, ChangeTextColor, ChangeFontSize, ChangeTextAlign, ChangeFontFamily, ChangeLineHeight, ChangeLetterSpacing, ChangeTextTransform, ClearFormatting, ApplyBatchFormat, TextRegenerate}},
	{GroupElement, []Action{DuplicateElement, DeleteElement, ElementStyle, ChangeElementType, ConvertCTAToForm, LinkSettings, ElementRegenerate}},
	{GroupImage, []Action{ReplaceImage, StockPhotos, EditImage, AltText, ImageFilters, Optimize, DeleteImage}},
	{GroupForm, []Action{AddField, RemoveField, FieldRequired, FormSettings, Integrations, FormStyling}},
}

// Actions returns every action in toolbar order.
func Actions() []Action {
	var out []Action
	for _, g := range groups {
		out = append(out, g.actions...)
	}
	return out
}

// ParseAction resolves an action id.
func ParseAction(id string) (Action, error) {
	for _, g := range groups {
		for _, a := range g.actions {
			if string(a) == id {
				return a, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, id)
}

// Group returns the toolbar the action belongs to.
func (a Action) Group() Group {
	for _, g := range groups {
		for _, v := range g.actions {
			if v == a {
				return g.group
			}
		}
	}
	return ""
}

// Params are the loosely typed arguments of one dispatch, as decoded from
// JSON or CLI flags.
type Params map[string]any

// String returns p[key] as a string. Non-string scalars are formatted.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Has reports whether key is present with a non-nil value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Bool reads a bool, accepting "true"/"false" and "on" as sent by HTML forms.
func (p Params) Bool(key string) (bool, error) {
	switch v := p[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v == "on" {
			return true, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s: invalid bool %q", key, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s: invalid bool %v", key, v)
	}
}

// Int reads an integer. JSON numbers arrive as float64.
func (p Params) Int(key string) (int, bool, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, v)
		}
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, fmt.Errorf("%s: invalid integer %q", key, v)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s: invalid integer %v", key, v)
	}
}

// Map reads a nested object.
func (p Params) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	if m == nil {
		if pm, ok := p[key].(Params); ok {
			m = pm
		}
	}
	return m
}

// Section returns the sectionId parameter, falling back to the
// elementSelection object used by the text toolbar.
func (p Params) Section() string {
	if s := p.String("sectionId"); s != "" {
		return s
	}
	id, _ := p.Map("elementSelection")["sectionId"].(string)
	return id
}

// Element returns the elementKey parameter, with the same fallback.
func (p Params) Element() string {
	if s := p.String("elementKey"); s != "" {
		return s
	}
	key, _ := p.Map("elementSelection")["elementKey"].(string)
	return key
}
