package browser

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/format"
)

// Lazy is an Applier attached on first use. Commands that never paint,
// focus or read style never start a browser. When the browser cannot be
// reached, styles and focus are recorded in a StyleLog instead.
type Lazy struct {
	launch func(ctx context.Context) (*Applier, error)
	logger *zap.Logger

	once     sync.Once
	mu       sync.Mutex
	applier  *Applier
	fallback *capability.StyleLog
	started  bool
}

var (
	_ capability.StyleApplier = (*Lazy)(nil)
	_ capability.Focuser      = (*Lazy)(nil)
	_ format.Animator         = (*Lazy)(nil)
)

// NewLazy returns a Lazy that attaches with New(cfg) on first use.
func NewLazy(cfg config.BrowserConfig, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{
		launch: func(ctx context.Context) (*Applier, error) { return New(ctx, cfg, logger) },
		logger: logger.Named("browser"),
	}
}

// Started reports whether an attach has been attempted.
func (l *Lazy) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// get attaches once. A nil Applier means the fallback log is in use.
func (l *Lazy) get() (*Applier, *capability.StyleLog) {
	l.once.Do(func() {
		a, err := l.launch(context.Background())
		l.mu.Lock()
		defer l.mu.Unlock()
		l.started = true
		if err != nil {
			l.logger.Warn("preview styling disabled", zap.Error(err))
			l.fallback = capability.NewStyleLog()
			return
		}
		l.applier = a
	})
	return l.applier, l.fallback
}

// Apply implements capability.StyleApplier.
func (l *Lazy) Apply(ctx context.Context, selector string, styles map[string]string) error {
	a, log := l.get()
	if a == nil {
		return log.Apply(ctx, selector, styles)
	}
	return a.Apply(ctx, selector, styles)
}

// Exists implements capability.Focuser.
func (l *Lazy) Exists(ctx context.Context, selector string) (bool, error) {
	a, log := l.get()
	if a == nil {
		return log.Exists(ctx, selector)
	}
	return a.Exists(ctx, selector)
}

// Focus implements capability.Focuser.
func (l *Lazy) Focus(ctx context.Context, selector string) error {
	a, log := l.get()
	if a == nil {
		return log.Focus(ctx, selector)
	}
	return a.Focus(ctx, selector)
}

// Animate implements format.Animator. Without a browser it fails, so the
// caller applies the change directly.
func (l *Lazy) Animate(ctx context.Context, ed format.Editor, property, from, to string) error {
	a, _ := l.get()
	if a == nil {
		return ErrNoElement
	}
	return a.Animate(ctx, ed, property, from, to)
}

// Node returns a format.Node that attaches on its first read.
func (l *Lazy) Node(selector string) format.Node {
	return lazyNode{l: l, selector: selector}
}

type lazyNode struct {
	l        *Lazy
	selector string
}

// ComputedStyle implements format.Node. Without a browser it returns the
// styles recorded in the fallback log.
func (n lazyNode) ComputedStyle(ctx context.Context) (map[string]string, error) {
	a, log := n.l.get()
	if a == nil {
		return log.Styles(n.selector), nil
	}
	return a.Node(n.selector).ComputedStyle(ctx)
}

// Close closes the browser if one was attached.
func (l *Lazy) Close() {
	l.mu.Lock()
	a := l.applier
	l.mu.Unlock()
	if a != nil {
		a.Close()
	}
}
