// Package app wires pagecraft's components together.
//
// Components are provided to a dig container and built on first use, so a
// command that only lists elements never opens a browser or a server:
//
//	c, err := app.New(app.Options{ConfigPath: "pagecraft.yaml", DocPath: "page.json"})
//	...
//	err = app.Invoke(c, func(e *elements.Engine) error { ... })
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/autosave"
	"github.com/livetemplate/pagecraft/internal/browser"
	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/format"
	"github.com/livetemplate/pagecraft/internal/importer"
	"github.com/livetemplate/pagecraft/internal/kv"
	"github.com/livetemplate/pagecraft/internal/logging"
	"github.com/livetemplate/pagecraft/internal/picker"
	"github.com/livetemplate/pagecraft/internal/server"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

// Options select the configuration and document files and the interactive
// capabilities of the caller.
type Options struct {
	ConfigPath string
	// DocPath is the document file; a missing file starts an empty document.
	DocPath string
	// Logger replaces the configured logger when set.
	Logger *zap.Logger
	// Confirmer and Chooser answer prompts. Nil confirms everything and
	// leaves choices to the action parameters.
	Confirmer capability.Confirmer
	Chooser   capability.Chooser
}

// Styles is the optional style capability; a nil Preview means no preview
// page is configured. The preview browser attaches on first use.
type Styles struct {
	Preview *browser.Lazy
}

// Session is every built component, for callers that need several.
type Session struct {
	dig.In

	Config     *config.Config
	Logger     *zap.Logger
	KV         kv.Store
	Store      *document.MemoryStore
	Schemas    *elements.SchemaRegistry
	Engine     *elements.Engine
	Dispatcher *toolbar.Dispatcher
	Importer   *importer.Importer
	Saver      *autosave.Saver
}

// New builds the container. Nothing is constructed until it is invoked.
func New(opts Options) (*dig.Container, error) {
	c := dig.New()
	providers := []any{
		func() Options { return opts },
		func() *closers { return &closers{} },
		loadConfig,
		newLogger,
		openKV,
		loadDocument,
		loadSchemas,
		newEngine,
		newStyles,
		newInlineActions,
		picker.New,
		newDispatcher,
		newSaver,
		importer.New,
		newServer,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("app: provide: %w", err)
		}
	}
	return c, nil
}

// Invoke calls fn with its dependencies built from c, unwrapping dig's
// error chain to the failure that caused it.
func Invoke(c *dig.Container, fn any) error {
	return dig.RootCause(c.Invoke(fn))
}

// closers collects cleanup for the components that were actually built, in
// construction order.
type closers struct {
	mu  sync.Mutex
	fns []func(context.Context) error
}

func (c *closers) add(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// Close releases what the container built, most recent first. Components
// that were never constructed are left alone.
func Close(ctx context.Context, c *dig.Container) error {
	var err error
	invokeErr := c.Invoke(func(cl *closers) {
		cl.mu.Lock()
		fns := cl.fns
		cl.fns = nil
		cl.mu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			err = multierr.Append(err, fns[i](ctx))
		}
	})
	return multierr.Append(err, invokeErr)
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.ConfigPath, err)
	}
	if cfg.Schemas.File != "" && !filepath.IsAbs(cfg.Schemas.File) && opts.ConfigPath != "" {
		cfg.Schemas.File = filepath.Join(filepath.Dir(opts.ConfigPath), cfg.Schemas.File)
	}
	return cfg, nil
}

func newLogger(opts Options, cfg *config.Config, cl *closers) (*zap.Logger, error) {
	if opts.Logger != nil {
		return opts.Logger, nil
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	cl.add(func(context.Context) error {
		// Sync on stderr fails with EINVAL on some platforms.
		_ = logger.Sync()
		return nil
	})
	return logger, nil
}

func openKV(opts Options, cfg *config.Config, logger *zap.Logger, cl *closers) (kv.Store, error) {
	baseDir := "."
	if opts.ConfigPath != "" {
		baseDir = filepath.Dir(opts.ConfigPath)
	}
	store, err := kv.Open(context.Background(), cfg.Storage, baseDir, logger)
	if err != nil {
		return nil, err
	}
	cl.add(func(context.Context) error { return store.Close() })
	return store, nil
}

// loadDocument reads the document file. Without one it restores the last
// auto-saved snapshot, so a server restarted without --doc resumes editing.
func loadDocument(opts Options, store kv.Store, logger *zap.Logger) (*document.MemoryStore, error) {
	if opts.DocPath != "" {
		return document.LoadFile(opts.DocPath)
	}
	doc := document.NewMemoryStore()
	snap, err := autosave.Load(context.Background(), store)
	switch {
	case err == nil:
		if err := doc.Restore(snap.Document); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		logger.Info("restored snapshot", zap.Time("savedAt", snap.SavedAt), zap.Int("sections", len(snap.Document.Sections)))
	case errors.Is(err, kv.ErrNotFound):
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return doc, nil
}

func loadSchemas(cfg *config.Config, logger *zap.Logger) (*elements.SchemaRegistry, error) {
	r := elements.NewSchemaRegistry()
	if cfg.Schemas.File == "" {
		return r, nil
	}
	n, err := r.LoadFile(cfg.Schemas.File)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded layout schemas", zap.String("path", cfg.Schemas.File), zap.Int("layouts", n))
	return r, nil
}

func newEngine(opts Options, cfg *config.Config, logger *zap.Logger, store *document.MemoryStore, schemas *elements.SchemaRegistry, kvStore kv.Store, styles Styles, cl *closers) *elements.Engine {
	engineOpts := []elements.Option{
		elements.WithSchemas(schemas),
		elements.WithKV(kvStore),
		elements.WithLogger(logger),
		elements.WithSource(config.GetOperator()),
		elements.WithAutoFocusDelay(cfg.Editor.GetAutoFocusDelay()),
		elements.WithConfirmDeletes(cfg.Editor.ShouldConfirmDeletes()),
		elements.WithBackupOnDelete(cfg.Editor.ShouldBackupOnDelete()),
	}
	if opts.Confirmer != nil {
		engineOpts = append(engineOpts, elements.WithConfirmer(opts.Confirmer))
	}
	if styles.Preview != nil {
		engineOpts = append(engineOpts, elements.WithFocuser(styles.Preview))
	}
	e := elements.New(store, engineOpts...)
	cl.add(func(context.Context) error { return e.Close() })
	return e
}

// newStyles prepares the preview browser when enabled. Nothing is launched
// until a component paints, focuses or reads style.
func newStyles(cfg *config.Config, logger *zap.Logger, cl *closers) Styles {
	if !cfg.Browser.Enabled {
		return Styles{}
	}
	l := browser.NewLazy(cfg.Browser, logger)
	cl.add(func(context.Context) error {
		l.Close()
		return nil
	})
	return Styles{Preview: l}
}

func newInlineActions(store *document.MemoryStore, styles Styles, logger *zap.Logger) *format.InlineActions {
	var animator format.Animator
	if styles.Preview != nil {
		animator = styles.Preview
	}
	return format.NewInlineActions(format.NewCoordinator(store, logger), store, animator, logger)
}

func newDispatcher(opts Options, cfg *config.Config, logger *zap.Logger, engine *elements.Engine, store *document.MemoryStore, schemas *elements.SchemaRegistry, kvStore kv.Store, inline *format.InlineActions, p *picker.Picker, styles Styles) *toolbar.Dispatcher {
	dispatcherOpts := []toolbar.Option{
		toolbar.WithInlineActions(inline),
		toolbar.WithPicker(p),
		toolbar.WithAssetStore(kvStore),
		toolbar.WithLayouts(schemas.Layouts),
		toolbar.WithMaxImageBytes(cfg.Editor.GetMaxImageSize()),
		toolbar.WithLogger(logger),
		toolbar.WithSource(config.GetOperator()),
	}
	if opts.Confirmer != nil {
		dispatcherOpts = append(dispatcherOpts, toolbar.WithConfirmer(opts.Confirmer))
	}
	if opts.Chooser != nil {
		dispatcherOpts = append(dispatcherOpts, toolbar.WithChooser(opts.Chooser))
	}
	if styles.Preview != nil {
		dispatcherOpts = append(dispatcherOpts, toolbar.WithStyleApplier(styles.Preview))
	}
	return toolbar.New(engine, store, dispatcherOpts...)
}

// newSaver attaches auto-save to the document. Saves go to the KV store, so
// with the memory driver they last only as long as the process.
func newSaver(cfg *config.Config, logger *zap.Logger, store *document.MemoryStore, kvStore kv.Store, cl *closers) *autosave.Saver {
	s := autosave.New(store, kvStore, cfg.AutoSave, logger)
	detach := s.Attach(store)
	cl.add(func(ctx context.Context) error {
		detach()
		return s.Close(ctx)
	})
	return s
}

func newServer(s Session, inline *format.InlineActions, styles Styles, cl *closers) (*server.Server, error) {
	opts := server.Options{
		Config:      s.Config,
		Store:       s.Store,
		Engine:      s.Engine,
		Dispatcher:  s.Dispatcher,
		Importer:    s.Importer,
		Saver:       s.Saver,
		Schemas:     s.Schemas,
		Coordinator: inline.Coordinator(),
		Logger:      s.Logger,
	}
	if styles.Preview != nil {
		opts.Styles = styles.Preview
		opts.Nodes = styles.Preview
	}
	srv, err := server.New(opts)
	if err != nil {
		return nil, err
	}
	cl.add(func(context.Context) error { return srv.Close() })
	return srv, nil
}

// WriteDocument saves the document back to path, creating parent
// directories as needed.
func WriteDocument(store *document.MemoryStore, path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return store.SaveFile(path)
}
