// Package format tracks which rendered element owns inline editing and keeps
// a cached format state for it. Format commands are forwarded to an executor
// supplied by whoever bound the editor; while nothing is bound every call is
// a no-op.
package format

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Command is one format operation with its value.
type Command struct {
	Action Action `json:"type"`
	Value  any    `json:"value"`
}

// Executor applies a command to the bound editor.
type Executor func(ctx context.Context, cmd Command) error

// Node reads computed style off a rendered element.
type Node interface {
	ComputedStyle(ctx context.Context) (map[string]string, error)
}

// Editor identifies the element being edited inline.
type Editor struct {
	SectionID  string
	ElementKey string
	// Node is optional; without it SyncFromNode is a no-op.
	Node Node
}

// KeyEvent is a keyboard event delivered to the coordinator.
type KeyEvent struct {
	Key  string
	Ctrl bool
	Meta bool
}

// Announcer publishes accessibility text.
type Announcer interface {
	AnnounceLiveRegion(text string)
}

// Coordinator is the Unbound/Bound state machine around the active editor.
// RegisterEditor and UnregisterEditor are its only transitions.
type Coordinator struct {
	mu       sync.Mutex
	editor   *Editor
	executor Executor
	state    State

	announcer Announcer
	logger    *zap.Logger
}

// NewCoordinator returns an unbound coordinator. announcer may be nil.
func NewCoordinator(announcer Announcer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		state:     DefaultState(),
		announcer: announcer,
		logger:    logger.Named("format"),
	}
}

// RegisterEditor binds ed and the executor that applies commands to it.
// Binding a new editor replaces the previous one.
func (c *Coordinator) RegisterEditor(ed Editor, exec Executor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor = &ed
	c.executor = exec
	c.logger.Debug("editor bound", zap.String("section", ed.SectionID), zap.String("element", ed.ElementKey))
}

// UnregisterEditor returns to Unbound. The cached state is kept.
func (c *Coordinator) UnregisterEditor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor = nil
	c.executor = nil
}

// Bound reports whether an editor is registered.
func (c *Coordinator) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor != nil
}

// Editor returns the bound editor.
func (c *Coordinator) Editor() (Editor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == nil {
		return Editor{}, false
	}
	return *c.editor, true
}

// BoundTo reports whether the bound editor is the given element.
func (c *Coordinator) BoundTo(sectionID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor != nil && c.editor.SectionID == sectionID && c.editor.ElementKey == key
}

// CanApplyFormat reports whether format commands will reach an editor.
func (c *Coordinator) CanApplyFormat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor != nil && c.executor != nil
}

// State returns the cached format state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState replaces the cached format state.
func (c *Coordinator) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// IsActive reports whether a toggle action is on. Non-toggle actions are
// never active.
func (c *Coordinator) IsActive(a Action) bool {
	if !a.Toggle() {
		return false
	}
	on, _ := c.State().Value(a).(bool)
	return on
}

// ExecuteFormat forwards cmd to the executor and updates the cached state.
// It returns false without side effects while unbound or when the value is
// invalid for the action.
func (c *Coordinator) ExecuteFormat(ctx context.Context, cmd Command) (bool, error) {
	value, err := Normalize(cmd.Action, cmd.Value)
	if err != nil {
		return false, nil
	}
	cmd.Value = value

	c.mu.Lock()
	exec := c.executor
	bound := c.editor != nil
	c.mu.Unlock()
	if !bound || exec == nil {
		return false, nil
	}

	if err := exec(ctx, cmd); err != nil {
		return false, err
	}
	c.commit(cmd)
	c.announce("Applied " + string(cmd.Action) + " formatting")
	return true, nil
}

// commit records a command applied outside ExecuteFormat.
func (c *Coordinator) commit(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.state.With(cmd.Action, cmd.Value)
}

// Toggle flips a boolean action.
func (c *Coordinator) Toggle(ctx context.Context, a Action) (bool, error) {
	return c.ExecuteFormat(ctx, Command{Action: a, Value: !c.IsActive(a)})
}

// ClearFormatting applies the default state.
func (c *Coordinator) ClearFormatting(ctx context.Context) (bool, error) {
	if !c.CanApplyFormat() {
		return false, nil
	}
	c.mu.Lock()
	exec := c.executor
	c.mu.Unlock()
	for _, cmd := range DefaultState().Commands() {
		if err := exec(ctx, cmd); err != nil {
			return false, err
		}
	}
	c.SetState(DefaultState())
	c.announce("Cleared all formatting")
	return true, nil
}

// SyncFromNode re-reads the cached state from the bound node's computed
// style. It returns false while unbound or when the editor has no node.
func (c *Coordinator) SyncFromNode(ctx context.Context) (bool, error) {
	ed, ok := c.Editor()
	if !ok || ed.Node == nil {
		return false, nil
	}
	css, err := ed.Node.ComputedStyle(ctx)
	if err != nil {
		return false, err
	}
	c.SetState(FromComputedStyle(css))
	return true, nil
}

// HandleKey applies Ctrl/Cmd+B, I and U while bound. It returns true when the
// event was consumed and the default behaviour should be prevented.
func (c *Coordinator) HandleKey(ctx context.Context, ev KeyEvent) bool {
	if !(ev.Ctrl || ev.Meta) || !c.CanApplyFormat() {
		return false
	}
	var a Action
	switch strings.ToLower(ev.Key) {
	case "b":
		a = Bold
	case "i":
		a = Italic
	case "u":
		a = Underline
	default:
		return false
	}
	if _, err := c.Toggle(ctx, a); err != nil {
		c.logger.Warn("shortcut failed", zap.String("action", string(a)), zap.Error(err))
	}
	return true
}

func (c *Coordinator) announce(text string) {
	if c.announcer != nil {
		c.announcer.AnnounceLiveRegion(text)
	}
}
