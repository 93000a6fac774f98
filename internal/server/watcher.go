package server

import (
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay coalesces the bursts of events editors emit for one save.
const reloadDelay = 100 * time.Millisecond

// SchemaLoader loads a layout-schema file. elements.SchemaRegistry satisfies it.
type SchemaLoader interface {
	LoadFile(path string) (int, error)
}

// SchemaWatcher reloads a layout-schema file whenever it changes.
type SchemaWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	loader   SchemaLoader
	onReload func(layouts int)
	debounce func(func())
	logger   *zap.Logger
	done     chan struct{}
}

// NewSchemaWatcher watches path. The parent directory is watched rather than
// the file so that editors which save by renaming are still seen. onReload
// runs after each successful reload and may be nil.
func NewSchemaWatcher(path string, loader SchemaLoader, onReload func(layouts int), logger *zap.Logger) (*SchemaWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	abs = filepath.Join(dir, filepath.Base(abs))
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return &SchemaWatcher{
		watcher:  fsWatcher,
		path:     abs,
		loader:   loader,
		onReload: onReload,
		debounce: debounce.New(reloadDelay),
		logger:   logger.Named("schemas"),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *SchemaWatcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					w.debounce(w.reload)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
	w.logger.Info("watching schema file", zap.String("path", w.path))
}

func (w *SchemaWatcher) reload() {
	n, err := w.loader.LoadFile(w.path)
	if err != nil {
		// A half-written file fails to parse; the next write retries.
		w.logger.Warn("schema reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("schemas reloaded", zap.String("path", w.path), zap.Int("layouts", n))
	if w.onReload != nil {
		w.onReload(n)
	}
}

// Stop stops the watcher.
func (w *SchemaWatcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
