package document

import (
	"fmt"
	"sync"
	"time"
)

// Store is the document contract the mutation core depends on.
// Read methods return snapshots the caller owns; mutating a snapshot never
// affects the store until it is written back with SetSection.
type Store interface {
	// Content returns a deep snapshot of every section keyed by id.
	Content() map[string]*Section
	// Section returns a deep snapshot of one section.
	Section(id string) (*Section, bool)
	// SetSection shallow-merges patch into section id. A missing section is
	// created only when the patch sets a layout; otherwise the call fails
	// with ErrSectionNotFound so a late write cannot resurrect a removed
	// section.
	SetSection(id string, patch SectionPatch) error
	// UpdateElementContent sets one element's content.
	UpdateElementContent(sectionID, key string, value Content) error
	// TrackChange appends one change-log entry.
	TrackChange(entry ChangeEntry)
	// TriggerAutoSave signals that the document is dirty.
	TriggerAutoSave()
	// AnnounceLiveRegion publishes accessibility text.
	AnnounceLiveRegion(text string)
	// MarkAsCustomized flags a section as hand-edited.
	MarkAsCustomized(sectionID string)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu            sync.RWMutex
	sections      map[string]*Section
	order         []string
	changes       []ChangeEntry
	announcements []string
	subscribers   map[int]func(ChangeEntry)
	nextSub       int
	autoSave      func()
	now           func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sections:    make(map[string]*Section),
		subscribers: make(map[int]func(ChangeEntry)),
		now:         time.Now,
	}
}

// OnAutoSave installs the function TriggerAutoSave calls.
func (s *MemoryStore) OnAutoSave(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSave = fn
}

// Content implements Store.
func (s *MemoryStore) Content() map[string]*Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Section, len(s.sections))
	for id, sec := range s.sections {
		out[id] = sec.Clone()
	}
	return out
}

// Section implements Store.
func (s *MemoryStore) Section(id string) (*Section, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	if !ok {
		return nil, false
	}
	return sec.Clone(), true
}

// SetSection implements Store.
func (s *MemoryStore) SetSection(id string, patch SectionPatch) error {
	if id == "" {
		return fmt.Errorf("%w: empty section id", ErrInconsistent)
	}
	if err := patch.validate(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[id]
	if !ok {
		if patch.Layout == nil {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
		}
		sec = NewSection(id, "")
		s.sections[id] = sec
		s.order = append(s.order, id)
	}
	if patch.Layout != nil {
		sec.Layout = *patch.Layout
	}
	if patch.Background != nil {
		sec.Background = *patch.Background
	}
	if patch.Customized != nil {
		sec.Customized = *patch.Customized
	}
	if patch.Elements != nil {
		elements := make(map[string]*Element, len(patch.Elements))
		for k, el := range patch.Elements {
			elements[k] = el.Clone()
		}
		sec.Elements = elements
	}
	return nil
}

// UpdateElementContent implements Store.
func (s *MemoryStore) UpdateElementContent(sectionID, key string, value Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[sectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
	}
	el, ok := sec.Elements[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrElementNotFound, sectionID, key)
	}
	el.Content = value.Clone()
	el.Metadata.LastModified = s.now()
	return nil
}

// TrackChange implements Store. Subscribers run outside the lock.
func (s *MemoryStore) TrackChange(entry ChangeEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.mu.Lock()
	s.changes = append(s.changes, entry)
	subs := make([]func(ChangeEntry), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
}

// TriggerAutoSave implements Store.
func (s *MemoryStore) TriggerAutoSave() {
	s.mu.RLock()
	fn := s.autoSave
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// AnnounceLiveRegion implements Store.
func (s *MemoryStore) AnnounceLiveRegion(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcements = append(s.announcements, text)
}

// MarkAsCustomized implements Store.
func (s *MemoryStore) MarkAsCustomized(sectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec, ok := s.sections[sectionID]; ok {
		sec.Customized = true
	}
}

// Subscribe registers fn for every tracked change and returns a cancel func.
func (s *MemoryStore) Subscribe(fn func(ChangeEntry)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Changes returns a copy of the change log.
func (s *MemoryStore) Changes() []ChangeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChangeEntry(nil), s.changes...)
}

// Announcements returns every live-region message so far.
func (s *MemoryStore) Announcements() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.announcements...)
}

// LastAnnouncement returns the most recent live-region message.
func (s *MemoryStore) LastAnnouncement() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.announcements) == 0 {
		return ""
	}
	return s.announcements[len(s.announcements)-1]
}
