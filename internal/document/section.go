package document

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrSectionNotFound is returned when a section id is unknown.
	ErrSectionNotFound = errors.New("section not found")
	// ErrElementNotFound is returned when an element key is unknown in its section.
	ErrElementNotFound = errors.New("element not found")
	// ErrInconsistent is returned when a patch would break key or section back-references.
	ErrInconsistent = errors.New("inconsistent section patch")
)

// Section is one page region and the elements it owns.
type Section struct {
	ID         string              `json:"id" yaml:"id"`
	Layout     string              `json:"layout" yaml:"layout"`
	Elements   map[string]*Element `json:"elements" yaml:"elements"`
	Background string              `json:"background,omitempty" yaml:"background,omitempty"`
	Customized bool                `json:"customized,omitempty" yaml:"customized,omitempty"`
}

// NewSection returns an empty section.
func NewSection(id, layout string) *Section {
	return &Section{ID: id, Layout: layout, Elements: make(map[string]*Element)}
}

// Clone deep-copies the section and its elements.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	out := *s
	out.Elements = make(map[string]*Element, len(s.Elements))
	for k, el := range s.Elements {
		out.Elements[k] = el.Clone()
	}
	return &out
}

// Ordered returns the elements sorted by position, ties broken by key.
// The returned pointers belong to s.
func (s *Section) Ordered() []*Element {
	out := make([]*Element, 0, len(s.Elements))
	for _, el := range s.Elements {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.Position != out[j].Metadata.Position {
			return out[i].Metadata.Position < out[j].Metadata.Position
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Keys returns element keys in position order.
func (s *Section) Keys() []string {
	ordered := s.Ordered()
	keys := make([]string, len(ordered))
	for i, el := range ordered {
		keys[i] = el.Key
	}
	return keys
}

// At returns the element holding the given position, if any.
func (s *Section) At(position int) (*Element, bool) {
	for _, el := range s.Elements {
		if el.Metadata.Position == position {
			return el, true
		}
	}
	return nil, false
}

// Dense reports whether positions form exactly 0..N-1.
func (s *Section) Dense() bool {
	seen := make([]bool, len(s.Elements))
	for _, el := range s.Elements {
		p := el.Metadata.Position
		if p < 0 || p >= len(seen) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// SectionPatch is a shallow partial update. Nil fields are left unchanged.
type SectionPatch struct {
	Layout     *string
	Elements   map[string]*Element
	Background *string
	Customized *bool
}

func (p SectionPatch) validate(id string) error {
	for key, el := range p.Elements {
		if el == nil {
			return fmt.Errorf("%w: nil element %q", ErrInconsistent, key)
		}
		if el.Key != key {
			return fmt.Errorf("%w: element key %q stored under %q", ErrInconsistent, el.Key, key)
		}
		if el.SectionID != id {
			return fmt.Errorf("%w: element %q references section %q, not %q", ErrInconsistent, key, el.SectionID, id)
		}
	}
	return nil
}

// ChangeType classifies change-log entries.
type ChangeType string

const (
	ChangeContent ChangeType = "content"
	ChangeLayout  ChangeType = "layout"
	ChangeFormat  ChangeType = "format"
	ChangeAction  ChangeType = "action"
)

// ChangeEntry is one append-only change-log record.
type ChangeEntry struct {
	Type       ChangeType `json:"type"`
	SectionID  string     `json:"sectionId,omitempty"`
	ElementKey string     `json:"elementKey,omitempty"`
	OldValue   any        `json:"oldValue"`
	NewValue   any        `json:"newValue"`
	Source     string     `json:"source"`
	Timestamp  time.Time  `json:"timestamp"`
}
