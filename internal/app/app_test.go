package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/server"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pagecraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "page.yaml")
	opts := Options{ConfigPath: writeConfig(t, dir, "storage:\n  driver: memory\n"), DocPath: docPath, Logger: zap.NewNop()}

	c, err := New(opts)
	require.NoError(t, err)
	err = Invoke(c, func(s Session) error {
		if err := s.Store.AddSection("hero", "leftCopyRightImage"); err != nil {
			return err
		}
		if _, err := s.Engine.AddElement(context.Background(), "hero", "headline", elements.AddOptions{Key: "title"}); err != nil {
			return err
		}
		return WriteDocument(s.Store, docPath)
	})
	require.NoError(t, err)
	require.NoError(t, Close(context.Background(), c))

	c, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(context.Background(), c) })
	require.NoError(t, Invoke(c, func(store *document.MemoryStore) {
		sec, ok := store.Section("hero")
		require.True(t, ok)
		assert.Equal(t, []string{"title"}, sec.Keys())
	}))
}

func TestRestoresSnapshotWithoutDocument(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ConfigPath: writeConfig(t, dir, "storage:\n  driver: sqlite\n  path: state.db\n"),
		Logger:     zap.NewNop(),
	}

	c, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, Invoke(c, func(s Session) error {
		if err := s.Store.AddSection("cta", "centeredCTA"); err != nil {
			return err
		}
		if _, err := s.Engine.AddElement(context.Background(), "cta", "button", elements.AddOptions{Key: "go"}); err != nil {
			return err
		}
		return s.Saver.Flush(context.Background())
	}))
	require.NoError(t, Close(context.Background(), c))
	assert.FileExists(t, filepath.Join(dir, "state.db"))

	c, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(context.Background(), c) })
	require.NoError(t, Invoke(c, func(store *document.MemoryStore) {
		sec, ok := store.Section("cta")
		require.True(t, ok)
		assert.Contains(t, sec.Elements, "go")
	}))
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Options{ConfigPath: writeConfig(t, dir, "storage:\n  driver: mongo\n")})
	require.NoError(t, err)
	err = Invoke(c, func(*elements.Engine) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestSchemaFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layouts.yaml"), []byte("promo:\n  - element: headline\n    mandatory: true\n"), 0o644))
	c, err := New(Options{ConfigPath: writeConfig(t, dir, "schemas:\n  file: layouts.yaml\n"), Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(context.Background(), c) })

	require.NoError(t, Invoke(c, func(d *toolbar.Dispatcher, r *elements.SchemaRegistry) {
		assert.Contains(t, r.Layouts(), "promo")
		assert.NotEmpty(t, d.AvailableActions())
	}))
}

func TestServerIsLazy(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Options{ConfigPath: writeConfig(t, dir, "api:\n  enabled: true\n"), Logger: zap.NewNop()})
	require.NoError(t, err)

	require.NoError(t, Invoke(c, func(*elements.Engine) {}))
	// The kv store and the engine; no saver, browser or server yet.
	require.NoError(t, Invoke(c, func(cl *closers) { assert.Len(t, cl.fns, 2) }))

	require.NoError(t, Invoke(c, func(s *server.Server) { assert.NotNil(t, s.Socket()) }))
	require.NoError(t, Close(context.Background(), c))
}

func TestPreviewBrowserIsLazy(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Options{
		ConfigPath: writeConfig(t, dir, "browser:\n  enabled: true\n  remote_url: ws://127.0.0.1:1/devtools/browser/none\n"),
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(context.Background(), c) })

	require.NoError(t, Invoke(c, func(s Session, styles Styles) {
		require.NotNil(t, styles.Preview)
		require.NotNil(t, s.Dispatcher)
		assert.Empty(t, s.Store.SectionOrder())
		assert.False(t, styles.Preview.Started(), "building a session must not attach the browser")
	}))
}
