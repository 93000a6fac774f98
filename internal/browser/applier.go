// Package browser drives a live preview page through the Chrome DevTools
// protocol. Its Applier paints styles, moves focus and reads computed style
// on the rendered elements the editor is changing.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/format"
)

// ErrNoElement is returned when a selector matches nothing on the page.
var ErrNoElement = errors.New("browser: no element matches selector")

// DefaultTimeout bounds each round trip to the browser.
const DefaultTimeout = 5 * time.Second

// transitionDuration is the CSS transition Animate sets. Animate returns
// once the transition has had time to finish.
const (
	transitionDuration = 200 * time.Millisecond
	transitionSettle   = transitionDuration + 50*time.Millisecond
)

// Applier implements capability.StyleApplier, capability.Focuser and
// format.Animator against one browser tab.
type Applier struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger
}

var (
	_ capability.StyleApplier = (*Applier)(nil)
	_ capability.Focuser      = (*Applier)(nil)
	_ format.Animator         = (*Applier)(nil)
)

// New attaches to the browser cfg names, or launches a headless one, and
// opens cfg.PreviewURL when set.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Applier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	a := &Applier{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout: DefaultTimeout,
		logger:  logger,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *runtime.EventExceptionThrown:
			logger.Warn("preview page error", zap.String("text", ev.ExceptionDetails.Text))
		case *runtime.EventConsoleAPICalled:
			if ev.Type == runtime.APITypeError {
				args := make([]string, len(ev.Args))
				for i, arg := range ev.Args {
					args[i] = string(arg.Value)
				}
				logger.Warn("preview console error", zap.String("text", strings.Join(args, " ")))
			}
		}
	})

	actions := []chromedp.Action{runtime.Enable()}
	if cfg.PreviewURL != "" {
		actions = append(actions, chromedp.Navigate(cfg.PreviewURL), chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		a.cancel()
		return nil, fmt.Errorf("browser: attach preview: %w", err)
	}
	logger.Info("preview attached", zap.String("url", cfg.PreviewURL), zap.Bool("remote", cfg.RemoteURL != ""))
	return a, nil
}

// Close closes the tab and, for a launched browser, the browser.
func (a *Applier) Close() {
	a.cancel()
}

// Navigate loads url in the tab.
func (a *Applier) Navigate(ctx context.Context, url string) error {
	return a.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Apply implements capability.StyleApplier. Empty values remove the property.
func (a *Applier) Apply(ctx context.Context, selector string, styles map[string]string) error {
	script, err := applyScript(selector, styles, "")
	if err != nil {
		return err
	}
	return a.eval(ctx, selector, script)
}

// Exists implements capability.Focuser.
func (a *Applier) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	if err := a.run(ctx, chromedp.Evaluate(existsScript(selector), &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Focus implements capability.Focuser.
func (a *Applier) Focus(ctx context.Context, selector string) error {
	return a.eval(ctx, selector, focusScript(selector))
}

// Animate implements format.Animator: it transitions property on the bound
// editor from one value to another and waits for the transition to finish.
func (a *Applier) Animate(ctx context.Context, ed format.Editor, property, from, to string) error {
	selector := capability.ElementSelector(ed.SectionID, ed.ElementKey)
	if err := a.Apply(ctx, selector, map[string]string{property: from}); err != nil {
		return err
	}
	script, err := applyScript(selector, map[string]string{property: to}, property)
	if err != nil {
		return err
	}
	return a.run(ctx, evalFound(selector, script), chromedp.Sleep(transitionSettle))
}

// Node returns a format.Node reading computed style off selector.
func (a *Applier) Node(selector string) format.Node {
	return node{a: a, selector: selector}
}

type node struct {
	a        *Applier
	selector string
}

// ComputedStyle implements format.Node.
func (n node) ComputedStyle(ctx context.Context) (map[string]string, error) {
	var out struct {
		Found bool              `json:"found"`
		CSS   map[string]string `json:"css"`
	}
	if err := n.a.run(ctx, chromedp.Evaluate(computedStyleScript(n.selector), &out)); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, n.selector)
	}
	return out.CSS, nil
}

func (a *Applier) eval(ctx context.Context, selector, script string) error {
	return a.run(ctx, evalFound(selector, script))
}

// run executes actions in the tab, bounded by the applier timeout and by ctx.
func (a *Applier) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}

// evalFound runs a script that returns whether its selector matched.
func evalFound(selector, script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var found bool
		if err := chromedp.Evaluate(script, &found).Do(ctx); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNoElement, selector)
		}
		return nil
	})
}

// Script builders. Arguments are JSON-encoded so selectors and values cannot
// break out of their string literals.

func applyScript(selector string, styles map[string]string, transition string) (string, error) {
	for prop := range styles {
		if prop == "" || strings.ContainsAny(prop, ";:{}\"'") {
			return "", fmt.Errorf("browser: invalid style property %q", prop)
		}
	}
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	css, err := json.Marshal(styles)
	if err != nil {
		return "", err
	}
	setTransition := ""
	if transition != "" {
		t, _ := json.Marshal(fmt.Sprintf("%s %dms ease", transition, transitionDuration.Milliseconds()))
		setTransition = fmt.Sprintf("el.style.transition = %s;", t)
	}
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	%s
	for (const [prop, value] of Object.entries(%s)) {
		if (value === "") el.style.removeProperty(prop);
		else el.style.setProperty(prop, value);
	}
	return true;
})()`, sel, setTransition, css), nil
}

func existsScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`document.querySelector(%s) !== null`, sel)
}

func focusScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.focus();
	return true;
})()`, sel)
}

// computedStyleProperties are the properties format.FromComputedStyle reads.
var computedStyleProperties = []string{
	"font-weight", "font-style", "text-decoration", "text-decoration-line",
	"color", "font-size", "font-family", "text-align",
	"line-height", "letter-spacing", "text-transform",
}

func computedStyleScript(selector string) string {
	sel, _ := json.Marshal(selector)
	props, _ := json.Marshal(computedStyleProperties)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return {found: false, css: {}};
	const cs = window.getComputedStyle(el);
	const css = {};
	for (const prop of %s) css[prop] = cs.getPropertyValue(prop);
	return {found: true, css};
})()`, sel, props)
}
