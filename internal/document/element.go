// Package document holds the editable page model: sections, the elements they
// own, the change log, and the Store contract the mutation core writes through.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ElementType is the closed set of element kinds the editor understands.
type ElementType string

const (
	TypeText        ElementType = "text"
	TypeRichText    ElementType = "richtext"
	TypeHeadline    ElementType = "headline"
	TypeSubheadline ElementType = "subheadline"
	TypeList        ElementType = "list"
	TypeButton      ElementType = "button"
	TypeImage       ElementType = "image"
	TypeVideo       ElementType = "video"
	TypeForm        ElementType = "form"
	TypeIcon        ElementType = "icon"
)

var elementTypes = []ElementType{
	TypeText,
	TypeRichText,
	TypeHeadline,
	TypeSubheadline,
	TypeList,
	TypeButton,
	TypeImage,
	TypeVideo,
	TypeForm,
	TypeIcon,
}

// ElementTypes returns every known element type in catalog order.
func ElementTypes() []ElementType {
	out := make([]ElementType, len(elementTypes))
	copy(out, elementTypes)
	return out
}

// ParseElementType resolves a type name. Matching is case-insensitive.
func ParseElementType(s string) (ElementType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range elementTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is one of the known element types.
func (t ElementType) Valid() bool {
	for _, known := range elementTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Content is either a single string or a list of strings.
type Content struct {
	Text   string
	Items  []string
	IsList bool
}

// TextContent builds string content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// ListContent builds list content.
func ListContent(items ...string) Content {
	if items == nil {
		items = []string{}
	}
	return Content{Items: items, IsList: true}
}

// Empty reports whether the content has nothing to show. Strings are trimmed.
func (c Content) Empty() bool {
	if c.IsList {
		return len(c.Items) == 0
	}
	return strings.TrimSpace(c.Text) == ""
}

// String returns the text, or the list items joined by a single space.
func (c Content) String() string {
	if c.IsList {
		return strings.Join(c.Items, " ")
	}
	return c.Text
}

// SameKind reports whether both contents are strings or both are lists.
func (c Content) SameKind(other Content) bool {
	return c.IsList == other.IsList
}

// Equal compares kind and value.
func (c Content) Equal(other Content) bool {
	if c.IsList != other.IsList {
		return false
	}
	if !c.IsList {
		return c.Text == other.Text
	}
	if len(c.Items) != len(other.Items) {
		return false
	}
	for i := range c.Items {
		if c.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with c.
func (c Content) Clone() Content {
	if !c.IsList {
		return c
	}
	items := make([]string, len(c.Items))
	copy(items, c.Items)
	return Content{Items: items, IsList: true}
}

// Value returns the content as a plain string or []string.
func (c Content) Value() any {
	if c.IsList {
		return c.Clone().Items
	}
	return c.Text
}

// ContentFrom converts a decoded JSON/YAML value into Content.
func ContentFrom(v any) (Content, error) {
	switch val := v.(type) {
	case nil:
		return TextContent(""), nil
	case string:
		return TextContent(val), nil
	case Content:
		return val.Clone(), nil
	case []string:
		return ListContent(append([]string(nil), val...)...), nil
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return Content{}, fmt.Errorf("list content must hold strings, got %T", item)
			}
			items = append(items, s)
		}
		return ListContent(items...), nil
	default:
		return Content{}, fmt.Errorf("unsupported content type %T", v)
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsList {
		items := c.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ContentFrom(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Content) MarshalYAML() (interface{}, error) {
	return c.Value(), nil
}

func (c *Content) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ContentFrom(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Props holds style and behaviour attributes of an element.
type Props map[string]any

// Clone deep-copies nested maps and slices so callers never alias.
func (p Props) Clone() Props {
	if p == nil {
		return Props{}
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of p overlaid with over.
func (p Props) Merge(over Props) Props {
	out := p.Clone()
	for k, v := range over {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns a prop as a string when it is one.
func (p Props) String(key string) string {
	s, _ := p[key].(string)
	return s
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Props:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner).(map[string]any)
		}
		return out
	default:
		return v
	}
}

// Metadata tracks placement and lifetime of an element.
type Metadata struct {
	AddedManually       bool      `json:"addedManually" yaml:"addedManually"`
	AddedAt             time.Time `json:"addedAt" yaml:"addedAt"`
	LastModified        time.Time `json:"lastModified" yaml:"lastModified"`
	Position            int       `json:"position" yaml:"position"`
	Version             int       `json:"version" yaml:"version"`
	IsOptional          bool      `json:"isOptional,omitempty" yaml:"isOptional,omitempty"`
	OptionalElementName string    `json:"optionalElementName,omitempty" yaml:"optionalElementName,omitempty"`
}

// EditState is transient view state and carries no document semantics.
type EditState struct {
	IsSelected bool `json:"isSelected" yaml:"isSelected"`
	IsEditing  bool `json:"isEditing" yaml:"isEditing"`
	IsDirty    bool `json:"isDirty" yaml:"isDirty"`
	HasErrors  bool `json:"hasErrors" yaml:"hasErrors"`
}

// Issue is one validation finding.
type Issue struct {
	Code     string `json:"code" yaml:"code"`
	Message  string `json:"message" yaml:"message"`
	Severity string `json:"severity" yaml:"severity"`
}

// Validation caches the last validation result of an element.
type Validation struct {
	IsValid  bool    `json:"isValid" yaml:"isValid"`
	Errors   []Issue `json:"errors" yaml:"errors"`
	Warnings []Issue `json:"warnings" yaml:"warnings"`
}

// Element is one editable content unit inside a section.
type Element struct {
	ID         string      `json:"id" yaml:"id"`
	Key        string      `json:"elementKey" yaml:"elementKey"`
	SectionID  string      `json:"sectionId" yaml:"sectionId"`
	Type       ElementType `json:"type" yaml:"type"`
	Content    Content     `json:"content" yaml:"content"`
	Props      Props       `json:"props" yaml:"props"`
	Metadata   Metadata    `json:"metadata" yaml:"metadata"`
	EditState  EditState   `json:"editState" yaml:"editState"`
	Validation Validation  `json:"validation" yaml:"validation"`
}

// Clone returns a deep copy of e.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := *e
	out.Content = e.Content.Clone()
	out.Props = e.Props.Clone()
	out.Validation.Errors = append([]Issue(nil), e.Validation.Errors...)
	out.Validation.Warnings = append([]Issue(nil), e.Validation.Warnings...)
	return &out
}
