package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/kv"
)

// countingStore counts writes and fails the next failures writes. The
// errors are retryable unless fatal is set.
type countingStore struct {
	*kv.MemoryStore
	mu       sync.Mutex
	sets     int32
	failures int
	fatal    bool
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	atomic.AddInt32(&c.sets, 1)
	c.mu.Lock()
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()
	if fail {
		return &kv.StoreError{Backend: "test", Operation: "set", Key: key, Err: errors.New("database is locked"), Retryable: !c.fatal}
	}
	return c.MemoryStore.Set(ctx, key, value)
}

func (c *countingStore) writes() int {
	return int(atomic.LoadInt32(&c.sets))
}

func testConfig(debounce time.Duration, maxQueue, retries int) config.AutoSaveConfig {
	return config.AutoSaveConfig{
		Debounce:      debounce.String(),
		MaxQueue:      maxQueue,
		Timeout:       "2s",
		RetryAttempts: &retries,
		RetryDelay:    "1ms",
	}
}

func change(key string, oldValue, newValue any) document.ChangeEntry {
	return document.ChangeEntry{Type: document.ChangeContent, SectionID: "hero", ElementKey: key, OldValue: oldValue, NewValue: newValue}
}

func newStore(t *testing.T) *document.MemoryStore {
	t.Helper()
	store := document.NewMemoryStore()
	require.NoError(t, store.AddSection("hero", "leftCopyRightImage"))
	return store
}

func TestSignificant(t *testing.T) {
	tests := []struct {
		name  string
		entry document.ChangeEntry
		want  bool
	}{
		{"changed text", change("a", "old", "new"), true},
		{"same text", change("a", "same", "same"), false},
		{"blanked", change("a", "old", ""), false},
		{"whitespace only", change("a", "old", "   \n"), false},
		{"trailing space added", change("a", "Hello", "Hello "), false},
		{"surrounding whitespace", change("a", "  Hello", "Hello\t"), false},
		{"text into padded text", change("a", "Hello", " Hello world "), true},
		{"string over map", change("a", map[string]any{"x": 1}, "x"), true},
		{"added", change("a", nil, map[string]any{"op": "element-add"}), true},
		{"removed", change("a", map[string]any{"op": "element-remove"}, nil), true},
		{"equal maps", change("a", map[string]any{"color": "#fff"}, map[string]any{"color": "#fff"}), false},
		{"both nil", change("a", nil, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Significant(tt.entry))
		})
	}
}

func TestEnqueueFiltersAndCaps(t *testing.T) {
	s := New(newStore(t), kv.NewMemoryStore(), testConfig(time.Hour, 3, 0), nil)

	s.Enqueue(change("a", "x", "x"))
	s.Enqueue(change("a", "x", ""))
	assert.Empty(t, s.Pending())
	assert.False(t, s.Stats().Dirty)

	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		s.Enqueue(change(k, "old", "new"))
	}
	pending := s.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "k3", pending[0].ElementKey)
	assert.Equal(t, "k5", pending[2].ElementKey)

	st := s.Stats()
	assert.True(t, st.Dirty)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, 2, st.Dropped)

	s.Clear()
	assert.Empty(t, s.Pending())
	assert.False(t, s.Stats().Dirty)
}

func TestFlushWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	engine := elements.New(store)
	t.Cleanup(func() { _ = engine.Close() })
	_, err := engine.AddElement(ctx, "hero", "headline", elements.AddOptions{})
	require.NoError(t, err)

	backend := kv.NewMemoryStore()
	s := New(store, backend, testConfig(time.Hour, 10, 0), nil)
	s.Enqueue(change("headline", "a", "b"))
	require.NoError(t, s.Flush(ctx))

	snap, err := Load(ctx, backend)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Changes)
	require.Len(t, snap.Document.Sections, 1)
	assert.Len(t, snap.Document.Sections[0].Elements, 1)

	st := s.Stats()
	assert.Equal(t, 1, st.SaveCount)
	assert.False(t, st.Dirty)
	assert.Zero(t, st.Pending)
	assert.False(t, st.LastSaved.IsZero())

	restored := document.NewMemoryStore()
	require.NoError(t, restored.Restore(snap.Document))
	assert.Equal(t, []string{"hero"}, restored.SectionOrder())
}

func TestLoadMissingSnapshot(t *testing.T) {
	_, err := Load(context.Background(), kv.NewMemoryStore())
	assert.True(t, errors.Is(err, kv.ErrNotFound))
}

func TestTriggerCoalesces(t *testing.T) {
	store := newStore(t)
	backend := &countingStore{MemoryStore: kv.NewMemoryStore()}
	s := New(store, backend, testConfig(20*time.Millisecond, 100, 0), nil)
	detach := s.Attach(store)
	defer detach()

	engine := elements.New(store)
	t.Cleanup(func() { _ = engine.Close() })
	for i := 0; i < 5; i++ {
		_, err := engine.AddElement(context.Background(), "hero", "text", elements.AddOptions{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return s.Stats().SaveCount == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, s.Stats().SaveCount)
	assert.Equal(t, 1, backend.writes())

	snap, err := Load(context.Background(), backend)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Changes)
}

func TestTriggerWithoutChangesSkipsSave(t *testing.T) {
	store := newStore(t)
	backend := &countingStore{MemoryStore: kv.NewMemoryStore()}
	s := New(store, backend, testConfig(5*time.Millisecond, 100, 0), nil)

	s.Trigger()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, backend.writes())
	assert.Zero(t, s.Stats().SaveCount)
}

func TestSaveRetries(t *testing.T) {
	store := newStore(t)
	backend := &countingStore{MemoryStore: kv.NewMemoryStore(), failures: 2}
	s := New(store, backend, testConfig(time.Hour, 100, 3), nil)
	s.Enqueue(change("a", "x", "y"))

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 3, backend.writes())
	assert.Equal(t, 1, s.Stats().SaveCount)
	assert.Zero(t, s.Stats().FailedSaves)
}

func TestFailedSaveKeepsChanges(t *testing.T) {
	store := newStore(t)
	backend := &countingStore{MemoryStore: kv.NewMemoryStore(), failures: 1, fatal: true}
	s := New(store, backend, testConfig(time.Hour, 100, 3), nil)
	s.Enqueue(change("a", "x", "y"))

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, backend.writes(), "permanent errors are not retried")

	st := s.Stats()
	assert.Equal(t, 1, st.FailedSaves)
	assert.Equal(t, 1, st.Pending)
	assert.True(t, st.Dirty)
	assert.Contains(t, st.LastError, "database is locked")

	require.NoError(t, s.Flush(context.Background()))
	st = s.Stats()
	assert.Equal(t, 1, st.SaveCount)
	assert.Zero(t, st.Pending)
	assert.Empty(t, st.LastError)
}

func TestCloseFlushesPending(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	backend := kv.NewMemoryStore()
	s := New(store, backend, testConfig(time.Hour, 100, 0), nil)

	s.Enqueue(change("a", "x", "y"))
	require.NoError(t, s.Close(ctx))
	_, err := Load(ctx, backend)
	require.NoError(t, err)

	assert.True(t, errors.Is(s.Flush(ctx), ErrClosed))
	s.Enqueue(change("b", "x", "y"))
	assert.Empty(t, s.Pending())
	require.NoError(t, s.Close(ctx))
}

func TestResetStats(t *testing.T) {
	s := New(newStore(t), kv.NewMemoryStore(), testConfig(time.Hour, 100, 0), nil)
	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, 1, s.Stats().SaveCount)
	s.ResetStats()
	assert.Zero(t, s.Stats().SaveCount)
	assert.Zero(t, s.Stats().AverageSaveTime)
}
