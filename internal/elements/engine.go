// Package elements is the positional mutation core of the editor: it adds,
// removes, moves, converts, searches and validates the elements of a section
// while keeping each section's positions a dense 0..N-1 ranking.
//
// Every mutation follows the same shape: lock the section, take a snapshot
// from the document store, change the snapshot, and commit it back with
// SetSection. Readers of the store never observe a half-applied operation.
package elements

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

const (
	defaultAutoFocusDelay = 100 * time.Millisecond
	focusTimeout          = 2 * time.Second
	kvTimeout             = 5 * time.Second
)

// Engine is the element CRUD engine. It is safe for concurrent use.
type Engine struct {
	store     document.Store
	schemas   SchemaSource
	kv        kv.Store
	confirmer capability.Confirmer
	focuser   capability.Focuser
	logger    *zap.Logger

	source         string
	autoFocusDelay time.Duration
	confirmDeletes bool
	backupOnDelete bool
	now            func() time.Time

	locks       *sectionLocks
	ids         *idSource
	templatesMu sync.Mutex

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSchemas sets the layout-schema source used to place optional elements.
func WithSchemas(s SchemaSource) Option {
	return func(e *Engine) { e.schemas = s }
}

// WithKV sets the store for backups and templates.
func WithKV(s kv.Store) Option {
	return func(e *Engine) { e.kv = s }
}

// WithConfirmer sets the capability asked before deletes.
func WithConfirmer(c capability.Confirmer) Option {
	return func(e *Engine) { e.confirmer = c }
}

// WithFocuser enables auto-focus of inserted elements.
func WithFocuser(f capability.Focuser) Option {
	return func(e *Engine) { e.focuser = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSource sets the source recorded on change-log entries.
func WithSource(source string) Option {
	return func(e *Engine) { e.source = source }
}

// WithAutoFocusDelay overrides the delay before an inserted element is focused.
func WithAutoFocusDelay(d time.Duration) Option {
	return func(e *Engine) { e.autoFocusDelay = d }
}

// WithConfirmDeletes toggles confirmation for every delete.
func WithConfirmDeletes(on bool) Option {
	return func(e *Engine) { e.confirmDeletes = on }
}

// WithBackupOnDelete makes every single-element delete write a backup.
func WithBackupOnDelete(on bool) Option {
	return func(e *Engine) { e.backupOnDelete = on }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over store. Without options it confirms every delete
// automatically, keeps backups and templates in memory, and never focuses.
func New(store document.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		schemas:        NewSchemaRegistry(),
		kv:             kv.NewMemoryStore(),
		confirmer:      capability.AlwaysConfirm,
		logger:         zap.NewNop(),
		source:         "editor",
		autoFocusDelay: defaultAutoFocusDelay,
		confirmDeletes: true,
		now:            time.Now,
		locks:          newSectionLocks(),
		ids:            newIDSource(),
		timers:         make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("crud")
	return e
}

// Store returns the document store the engine writes through.
func (e *Engine) Store() document.Store {
	return e.store
}

// Close cancels pending auto-focus timers. The engine must not be used after.
func (e *Engine) Close() error {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	e.closed = true
	for t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
	return nil
}

// mutate runs fn on a private snapshot of section id under the section lock and
// commits the result. fn returning an error discards the snapshot.
func (e *Engine) mutate(op, id string, fn func(sec *document.Section) error) error {
	unlock := e.locks.lock(id)
	defer unlock()

	sec, ok := e.store.Section(id)
	if !ok {
		return sectionNotFound(op, id)
	}
	if err := fn(sec); err != nil {
		return err
	}
	return e.commit(op, sec)
}

func (e *Engine) commit(op string, sec *document.Section) error {
	if err := e.store.SetSection(sec.ID, document.SectionPatch{Elements: sec.Elements}); err != nil {
		if errors.Is(err, document.ErrSectionNotFound) {
			return sectionNotFound(op, sec.ID)
		}
		return fault(op, sec.ID, "", err)
	}
	return nil
}

// LockSections takes the per-section writer locks the engine's own mutations
// use. Section-level changes made directly on the store (remove, duplicate,
// move, layout) must hold them so they serialize with element mutations.
func (e *Engine) LockSections(ids ...string) (unlock func()) {
	return e.locks.lock(ids...)
}

// record appends a change entry, signals auto-save and announces text.
func (e *Engine) record(typ document.ChangeType, section, key string, oldValue, newValue any, announcement string) {
	e.store.TrackChange(document.ChangeEntry{
		Type:       typ,
		SectionID:  section,
		ElementKey: key,
		OldValue:   oldValue,
		NewValue:   newValue,
		Source:     e.source,
		Timestamp:  e.now(),
	})
	e.store.TriggerAutoSave()
	if announcement != "" {
		e.store.AnnounceLiveRegion(announcement)
	}
}

func (e *Engine) confirm(ctx context.Context, op, section, key, message string, skip bool) error {
	if skip || !e.confirmDeletes || e.confirmer == nil {
		return nil
	}
	ok, err := e.confirmer.Confirm(ctx, message)
	if err != nil {
		return fault(op, section, key, err)
	}
	if !ok {
		return aborted(op, section, key)
	}
	return nil
}

// scheduleFocus focuses the element after the auto-focus delay, provided it
// still exists in the document and in the rendered page.
func (e *Engine) scheduleFocus(sectionID, key string) {
	if e.focuser == nil {
		return
	}
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if e.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(e.autoFocusDelay, func() {
		e.timersMu.Lock()
		delete(e.timers, t)
		closed := e.closed
		e.timersMu.Unlock()
		if closed {
			return
		}
		e.focus(sectionID, key)
	})
	e.timers[t] = struct{}{}
}

func (e *Engine) focus(sectionID, key string) {
	sec, ok := e.store.Section(sectionID)
	if !ok {
		return
	}
	if _, ok := sec.Elements[key]; !ok {
		e.logger.Debug("skipping focus of removed element", zap.String("section", sectionID), zap.String("element", key))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), focusTimeout)
	defer cancel()
	selector := capability.ElementSelector(sectionID, key)
	exists, err := e.focuser.Exists(ctx, selector)
	if err != nil || !exists {
		e.logger.Debug("focus target not rendered", zap.String("selector", selector), zap.Error(err))
		return
	}
	if err := e.focuser.Focus(ctx, selector); err != nil {
		e.logger.Warn("focus failed", zap.String("selector", selector), zap.Error(err))
	}
}

// pendingFocus reports how many auto-focus timers have not fired.
func (e *Engine) pendingFocus() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	return len(e.timers)
}

// shiftFrom right-shifts every element at or after position.
func shiftFrom(sec *document.Section, position int) {
	for _, el := range sec.Elements {
		if el.Metadata.Position >= position {
			el.Metadata.Position++
		}
	}
}

// closeGap left-shifts every element after position.
func closeGap(sec *document.Section, position int) {
	for _, el := range sec.Elements {
		if el.Metadata.Position > position {
			el.Metadata.Position--
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resetEditState(el *document.Element) {
	el.EditState = document.EditState{}
}

func freshValidation() document.Validation {
	return document.Validation{IsValid: true, Errors: []document.Issue{}, Warnings: []document.Issue{}}
}
