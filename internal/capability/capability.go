// Package capability defines the host services the editor core needs but does
// not own: confirmation, option choice, live styling and focus.
package capability

//go:generate mockgen -source=capability.go -destination=mock_capability.go -package=capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoChoice is returned by a Chooser when the user dismisses the choice.
var ErrNoChoice = errors.New("no option chosen")

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Chooser asks the user to pick one of the offered options.
type Chooser interface {
	Choose(ctx context.Context, prompt string, options []string) (string, error)
}

// StyleApplier sets inline CSS properties on the nodes matching selector.
type StyleApplier interface {
	Apply(ctx context.Context, selector string, styles map[string]string) error
}

// Focuser moves keyboard focus to a rendered node.
type Focuser interface {
	Exists(ctx context.Context, selector string) (bool, error)
	Focus(ctx context.Context, selector string) error
}

// ElementSelector returns the CSS selector addressing one rendered element.
// Both ids are serialized as CSS strings, so quotes and brackets in them
// cannot break out of the attribute selector.
func ElementSelector(sectionID, elementKey string) string {
	return fmt.Sprintf(`[data-section-id=%s] [data-element-key=%s]`, cssString(sectionID), cssString(elementKey))
}

// cssString serializes s as a double-quoted CSS string, following the CSSOM
// "serialize a string" rules.
func cssString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// AlwaysConfirm approves every request. It is the headless default.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// ChooseFunc adapts a function to Chooser.
type ChooseFunc func(ctx context.Context, prompt string, options []string) (string, error)

func (f ChooseFunc) Choose(ctx context.Context, prompt string, options []string) (string, error) {
	return f(ctx, prompt, options)
}

// FirstOption picks the first option offered.
var FirstOption Chooser = ChooseFunc(func(_ context.Context, _ string, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoChoice
	}
	return options[0], nil
})

// StyleLog is a StyleApplier and Focuser that records instead of rendering.
// It backs headless hosts where no preview page exists.
type StyleLog struct {
	mu      sync.Mutex
	styles  map[string]map[string]string
	focused string
}

// NewStyleLog creates an empty StyleLog.
func NewStyleLog() *StyleLog {
	return &StyleLog{styles: make(map[string]map[string]string)}
}

// Apply implements StyleApplier.
func (l *StyleLog) Apply(_ context.Context, selector string, styles map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.styles[selector]
	if !ok {
		current = make(map[string]string)
		l.styles[selector] = current
	}
	for prop, value := range styles {
		if value == "" {
			delete(current, prop)
			continue
		}
		current[prop] = value
	}
	return nil
}

// Exists implements Focuser. Every selector exists in a headless host.
func (l *StyleLog) Exists(context.Context, string) (bool, error) {
	return true, nil
}

// Focus implements Focuser.
func (l *StyleLog) Focus(_ context.Context, selector string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.focused = selector
	return nil
}

// Styles returns a copy of the styles recorded for selector.
func (l *StyleLog) Styles(selector string) map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.styles[selector]))
	for k, v := range l.styles[selector] {
		out[k] = v
	}
	return out
}

// Focused returns the last focused selector.
func (l *StyleLog) Focused() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.focused
}

// CSS renders the styles recorded for selector as a declaration list.
func (l *StyleLog) CSS(selector string) string {
	styles := l.Styles(selector)
	props := make([]string, 0, len(styles))
	for p := range styles {
		props = append(props, p)
	}
	sort.Strings(props)
	var b strings.Builder
	for _, p := range props {
		fmt.Fprintf(&b, "%s: %s; ", p, styles[p])
	}
	return strings.TrimSpace(b.String())
}
