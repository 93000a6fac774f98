// Package autosave coalesces document changes and persists snapshots of the
// page to the key-value store.
package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

// SnapshotKey is where the latest document snapshot is stored.
const SnapshotKey = "document_snapshot"

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("autosave: saver closed")

// Source produces the document to persist.
type Source interface {
	Snapshot() document.Document
}

// Snapshot is the persisted form of a save.
type Snapshot struct {
	Document document.Document `json:"document"`
	SavedAt  time.Time         `json:"savedAt"`
	Changes  int               `json:"changes"`
}

// Stats reports the saver's progress.
type Stats struct {
	Dirty           bool          `json:"dirty"`
	Saving          bool          `json:"saving"`
	Pending         int           `json:"pending"`
	Dropped         int           `json:"dropped"`
	SaveCount       int           `json:"saveCount"`
	FailedSaves     int           `json:"failedSaves"`
	LastSaved       time.Time     `json:"lastSaved,omitempty"`
	LastSaveTime    time.Duration `json:"lastSaveTime"`
	AverageSaveTime time.Duration `json:"averageSaveTime"`
	LastError       string        `json:"lastError,omitempty"`
}

// Saver queues significant changes and writes a snapshot once the edits
// settle. Saves never run concurrently.
type Saver struct {
	source Source
	store  kv.Store
	logger *zap.Logger

	maxQueue int
	timeout  time.Duration
	retry    kv.RetryConfig
	debounce func(func())
	now      func() time.Time

	mu        sync.Mutex
	queue     []document.ChangeEntry
	stats     Stats
	totalTime time.Duration
	closed    bool

	saveMu sync.Mutex
}

// New creates a Saver writing snapshots of source to store.
func New(source Source, store kv.Store, cfg config.AutoSaveConfig, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := cfg.GetRetryDelay()
	return &Saver{
		source:   source,
		store:    store,
		logger:   logger.Named("autosave"),
		maxQueue: cfg.GetMaxQueue(),
		timeout:  cfg.GetTimeout(),
		retry: kv.RetryConfig{
			MaxRetries: cfg.GetRetryAttempts(),
			BaseDelay:  delay,
			MaxDelay:   30 * delay,
			Multiplier: 2.0,
		},
		debounce: debounce.New(cfg.GetDebounce()),
		now:      time.Now,
	}
}

// Attach subscribes the saver to store's change log and auto-save hook. The
// returned func detaches it.
func (s *Saver) Attach(store *document.MemoryStore) func() {
	unsubscribe := store.Subscribe(s.Enqueue)
	store.OnAutoSave(s.Trigger)
	return func() {
		unsubscribe()
		store.OnAutoSave(nil)
	}
}

// Significant reports whether a change is worth saving: it must alter the
// value, and must not merely blank a string. Strings are compared with
// surrounding whitespace trimmed.
func Significant(e document.ChangeEntry) bool {
	if s, ok := e.NewValue.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return false
		}
		if old, ok := e.OldValue.(string); ok {
			return strings.TrimSpace(old) != s
		}
	}
	return !reflect.DeepEqual(e.OldValue, e.NewValue)
}

// Enqueue records a change. Insignificant changes are ignored and the queue
// keeps at most MaxQueue entries, dropping the oldest.
func (s *Saver) Enqueue(e document.ChangeEntry) {
	if !Significant(e) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, e)
	if over := len(s.queue) - s.maxQueue; over > 0 {
		s.queue = append([]document.ChangeEntry(nil), s.queue[over:]...)
		s.stats.Dropped += over
		s.logger.Warn("change queue full, dropping oldest", zap.Int("dropped", over))
	}
	s.stats.Dirty = true
}

// Trigger schedules a save after the debounce interval. Calls within the
// interval coalesce into one save.
func (s *Saver) Trigger() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.debounce(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.save(ctx, false); err != nil {
			s.logger.Error("auto-save failed", zap.Error(err))
		}
	})
}

// Flush saves immediately, whether or not changes are pending.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.save(ctx, true)
}

// Close flushes pending changes and stops further saves.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	pending := len(s.queue) > 0
	s.closed = true
	s.mu.Unlock()
	if !pending {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.save(ctx, true)
}

// Pending returns a copy of the queued changes.
func (s *Saver) Pending() []document.ChangeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]document.ChangeEntry(nil), s.queue...)
}

// Clear drops queued changes without saving.
func (s *Saver) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.stats.Dirty = false
}

// Stats returns a snapshot of the saver's counters.
func (s *Saver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = len(s.queue)
	return st
}

// ResetStats zeroes the save counters. Queued changes are kept.
func (s *Saver) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{Dirty: s.stats.Dirty, Saving: s.stats.Saving}
	s.totalTime = 0
}

func (s *Saver) save(ctx context.Context, force bool) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if len(s.queue) == 0 && !force {
		s.mu.Unlock()
		return nil
	}
	batch := s.queue
	s.queue = nil
	s.stats.Saving = true
	s.mu.Unlock()

	start := s.now()
	snap := Snapshot{Document: s.source.Snapshot(), SavedAt: start, Changes: len(batch)}
	data, err := json.Marshal(snap)
	if err == nil {
		err = kv.WithRetry(ctx, s.logger, "save snapshot", s.retry, func(ctx context.Context) error {
			return s.store.Set(ctx, SnapshotKey, data)
		})
	}
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Saving = false
	if err != nil {
		// Keep the failed batch ahead of anything queued meanwhile.
		s.queue = append(batch, s.queue...)
		if over := len(s.queue) - s.maxQueue; over > 0 {
			s.queue = s.queue[over:]
			s.stats.Dropped += over
		}
		s.stats.FailedSaves++
		s.stats.LastError = err.Error()
		return fmt.Errorf("autosave: %w", err)
	}

	s.stats.SaveCount++
	s.stats.LastSaved = start
	s.stats.LastSaveTime = elapsed
	s.stats.LastError = ""
	s.totalTime += elapsed
	s.stats.AverageSaveTime = s.totalTime / time.Duration(s.stats.SaveCount)
	s.stats.Dirty = len(s.queue) > 0
	s.logger.Debug("snapshot saved",
		zap.Int("changes", len(batch)),
		zap.Int("sections", len(snap.Document.Sections)),
		zap.Duration("duration", elapsed))
	return nil
}

// Load reads the last saved snapshot. A missing snapshot is kv.ErrNotFound.
func Load(ctx context.Context, store kv.Store) (Snapshot, error) {
	var snap Snapshot
	if err := kv.GetJSON(ctx, store, SnapshotKey, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
