package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AddSection creates an empty section at the end of the page.
func (s *MemoryStore) AddSection(id, layout string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[id]; ok {
		return fmt.Errorf("section %q already exists", id)
	}
	s.sections[id] = NewSection(id, layout)
	s.order = append(s.order, id)
	return nil
}

// RemoveSection deletes a section and its elements.
func (s *MemoryStore) RemoveSection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	delete(s.sections, id)
	s.order = removeString(s.order, id)
	return nil
}

// DuplicateSection copies a section under newID, placed right after the original.
// Element ids are kept; element back-references are rewritten to newID.
func (s *MemoryStore) DuplicateSection(id, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	if _, exists := s.sections[newID]; exists {
		return fmt.Errorf("section %q already exists", newID)
	}
	dup := sec.Clone()
	dup.ID = newID
	for _, el := range dup.Elements {
		el.SectionID = newID
	}
	s.sections[newID] = dup

	idx := indexOf(s.order, id)
	s.order = append(s.order, "")
	copy(s.order[idx+2:], s.order[idx+1:])
	s.order[idx+1] = newID
	return nil
}

// MoveSection shifts a section by delta places in page order. It reports
// false when the section is already at the boundary.
func (s *MemoryStore) MoveSection(id string, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.order, id)
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	target := idx + delta
	if target < 0 || target >= len(s.order) || delta == 0 {
		return false, nil
	}
	s.order = removeString(s.order, id)
	s.order = append(s.order[:target], append([]string{id}, s.order[target:]...)...)
	return true, nil
}

// SectionOrder returns section ids in page order.
func (s *MemoryStore) SectionOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Document is the serialised page.
type Document struct {
	Sections []*Section `json:"sections" yaml:"sections"`
}

// Snapshot returns the page as an ordered Document.
func (s *MemoryStore) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := Document{Sections: make([]*Section, 0, len(s.order))}
	for _, id := range s.order {
		doc.Sections = append(doc.Sections, s.sections[id].Clone())
	}
	return doc
}

// Restore replaces the whole page. The change log is kept.
func (s *MemoryStore) Restore(doc Document) error {
	sections := make(map[string]*Section, len(doc.Sections))
	order := make([]string, 0, len(doc.Sections))
	for _, sec := range doc.Sections {
		if sec == nil || sec.ID == "" {
			return fmt.Errorf("%w: section without id", ErrInconsistent)
		}
		if _, dup := sections[sec.ID]; dup {
			return fmt.Errorf("%w: duplicate section %q", ErrInconsistent, sec.ID)
		}
		if err := (SectionPatch{Elements: sec.Elements}).validate(sec.ID); err != nil {
			return err
		}
		clone := sec.Clone()
		if clone.Elements == nil {
			clone.Elements = make(map[string]*Element)
		}
		sections[sec.ID] = clone
		order = append(order, sec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = sections
	s.order = order
	return nil
}

// MarshalJSON encodes the snapshot.
func (s *MemoryStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// LoadFile reads a .json, .yaml or .yml document into a new store.
// A missing file yields an empty store.
func LoadFile(path string) (*MemoryStore, error) {
	store := NewMemoryStore()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc Document
	if isYAML(path) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	if err := store.Restore(doc); err != nil {
		return nil, err
	}
	return store, nil
}

// SaveFile writes the store snapshot, choosing the encoding by extension.
func (s *MemoryStore) SaveFile(path string) error {
	doc := s.Snapshot()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
