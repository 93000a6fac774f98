package elements

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// SchemaElement is one named slot in a layout.
type SchemaElement struct {
	Name       string `yaml:"element" json:"element"`
	Mandatory  bool   `yaml:"mandatory" json:"mandatory"`
	Generation string `yaml:"generation,omitempty" json:"generation,omitempty"`
}

// SchemaSource resolves the ordered slots of a layout. An unknown layout
// returns no elements and no error.
type SchemaSource interface {
	LayoutElements(layout string) ([]SchemaElement, error)
}

// SchemaRegistry is a SchemaSource backed by built-in layouts plus any
// layouts loaded from YAML. Safe for concurrent use.
type SchemaRegistry struct {
	mu      sync.RWMutex
	layouts map[string][]SchemaElement
}

// NewSchemaRegistry returns a registry holding the built-in layouts.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{layouts: make(map[string][]SchemaElement)}
	for name, elems := range builtinLayouts() {
		r.layouts[name] = elems
	}
	return r
}

// LayoutElements implements SchemaSource.
func (r *SchemaRegistry) LayoutElements(layout string) ([]SchemaElement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SchemaElement(nil), r.layouts[layout]...), nil
}

// Register adds or replaces one layout.
func (r *SchemaRegistry) Register(layout string, elems []SchemaElement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts[layout] = append([]SchemaElement(nil), elems...)
}

// Layouts lists the known layout names, sorted.
func (r *SchemaRegistry) Layouts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.layouts))
	for name := range r.layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile merges the layouts in a YAML file of the form
//
//	heroCentered:
//	  - element: headline
//	    mandatory: true
//
// over the registry. Layouts in the file replace same-named ones.
func (r *SchemaRegistry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read schema file: %w", err)
	}
	var layouts map[string][]SchemaElement
	if err := yaml.Unmarshal(data, &layouts); err != nil {
		return 0, fmt.Errorf("parse schema file: %w", err)
	}
	for name, elems := range layouts {
		for i, el := range elems {
			if el.Name == "" {
				return 0, fmt.Errorf("schema %q: element %d has no name", name, i)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, elems := range layouts {
		r.layouts[name] = elems
	}
	return len(layouts), nil
}

func schemaIndex(elems []SchemaElement, name string) int {
	for i, el := range elems {
		if el.Name == name {
			return i
		}
	}
	return -1
}

func builtinLayouts() map[string][]SchemaElement {
	return map[string][]SchemaElement{
		"leftCopyRightImage": {
			{Name: "headline", Mandatory: true, Generation: "ai_generated"},
			{Name: "cta_text", Mandatory: true, Generation: "ai_generated"},
			{Name: "subheadline", Mandatory: true, Generation: "ai_generated"},
			{Name: "supporting_text", Generation: "ai_generated"},
			{Name: "badge_text", Generation: "ai_generated"},
			{Name: "trust_items", Generation: "ai_generated"},
			{Name: "hero_image", Mandatory: true, Generation: "manual_preferred"},
			{Name: "customer_count", Generation: "manual_preferred"},
			{Name: "rating_value", Generation: "manual_preferred"},
			{Name: "rating_count", Generation: "manual_preferred"},
		},
		"SideBySideBlocks": {
			{Name: "headline", Mandatory: true, Generation: "ai_generated"},
			{Name: "before_label", Mandatory: true, Generation: "ai_generated"},
			{Name: "after_label", Mandatory: true, Generation: "ai_generated"},
			{Name: "before_description", Mandatory: true, Generation: "ai_generated"},
			{Name: "after_description", Mandatory: true, Generation: "ai_generated"},
			{Name: "before_icon", Generation: "ai_generated"},
			{Name: "after_icon", Generation: "ai_generated"},
			{Name: "subheadline", Generation: "ai_generated"},
			{Name: "supporting_text", Generation: "ai_generated"},
			{Name: "cta_text", Generation: "ai_generated"},
			{Name: "trust_items", Generation: "ai_generated"},
		},
		"AccordionFAQ": {
			{Name: "headline", Mandatory: true, Generation: "ai_generated"},
			{Name: "subheadline", Generation: "ai_generated"},
			{Name: "question_1", Mandatory: true, Generation: "ai_generated"},
			{Name: "answer_1", Mandatory: true, Generation: "ai_generated"},
			{Name: "question_2", Mandatory: true, Generation: "ai_generated"},
			{Name: "answer_2", Mandatory: true, Generation: "ai_generated"},
			{Name: "question_3", Mandatory: true, Generation: "ai_generated"},
			{Name: "answer_3", Mandatory: true, Generation: "ai_generated"},
			{Name: "expand_icon", Generation: "ai_generated"},
			{Name: "collapse_icon", Generation: "ai_generated"},
		},
		"LogoWall": {
			{Name: "headline", Mandatory: true, Generation: "ai_generated"},
			{Name: "subheadline", Generation: "ai_generated"},
			{Name: "logo_urls", Generation: "manual_preferred"},
			{Name: "trust_badge_text", Generation: "ai_generated"},
			{Name: "company_names", Mandatory: true, Generation: "manual_preferred"},
		},
	}
}
