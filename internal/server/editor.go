package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/format"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

// Envelope actions handled by the socket itself rather than the toolbar.
const (
	ActionEditorBind   = "editor-bind"
	ActionEditorUnbind = "editor-unbind"
	ActionEditorKey    = "editor-key"
)

// NodeSource resolves a rendered element for computed-style reads.
// browser.Applier implements it.
type NodeSource interface {
	Node(selector string) format.Node
}

// EditorState is the result of the editor envelopes.
type EditorState struct {
	Bound      bool         `json:"bound"`
	SectionID  string       `json:"sectionId,omitempty"`
	ElementKey string       `json:"elementKey,omitempty"`
	Handled    bool         `json:"handled,omitempty"`
	Format     format.State `json:"format"`
}

// EditorBinder lets one websocket client own the inline editor. Binding
// registers the target element with the format coordinator, so text
// actions for it go through the coordinator until the client unbinds or
// disconnects.
type EditorBinder struct {
	coord  *format.Coordinator
	store  *document.MemoryStore
	styles capability.StyleApplier
	nodes  NodeSource
	logger *zap.Logger

	mu    sync.Mutex
	owner *wsClient
}

// NewEditorBinder creates a binder. styles paints format commands onto the
// bound element; nil records them in a StyleLog. nodes may be nil, in which
// case the cached format state is not read back from the page.
func NewEditorBinder(coord *format.Coordinator, store *document.MemoryStore, styles capability.StyleApplier, nodes NodeSource, logger *zap.Logger) *EditorBinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if styles == nil {
		styles = capability.NewStyleLog()
	}
	return &EditorBinder{
		coord:  coord,
		store:  store,
		styles: styles,
		nodes:  nodes,
		logger: logger.Named("editor"),
	}
}

// Bind makes c the owner of the inline editor for sectionID/key.
func (b *EditorBinder) Bind(ctx context.Context, c *wsClient, sectionID, key string) (EditorState, error) {
	if sectionID == "" || key == "" {
		return EditorState{}, errors.New("sectionId and elementKey are required")
	}
	sec, ok := b.store.Section(sectionID)
	if !ok {
		return EditorState{}, fmt.Errorf("%w: %s", document.ErrSectionNotFound, sectionID)
	}
	if _, ok := sec.Elements[key]; !ok {
		return EditorState{}, fmt.Errorf("%w: %s/%s", document.ErrElementNotFound, sectionID, key)
	}

	selector := capability.ElementSelector(sectionID, key)
	ed := format.Editor{SectionID: sectionID, ElementKey: key}
	if b.nodes != nil {
		ed.Node = b.nodes.Node(selector)
	}
	styles := b.styles
	b.mu.Lock()
	b.owner = c
	b.coord.RegisterEditor(ed, func(ctx context.Context, cmd format.Command) error {
		return styles.Apply(ctx, selector, map[string]string{cmd.Action.CSSProperty(): format.CSSValue(cmd.Action, cmd.Value)})
	})
	b.mu.Unlock()

	if _, err := b.coord.SyncFromNode(ctx); err != nil {
		b.logger.Warn("format sync failed", zap.String("section", sectionID), zap.String("element", key), zap.Error(err))
	}
	return b.state(), nil
}

// Unbind releases the editor when c owns it.
func (b *EditorBinder) Unbind(c *wsClient) EditorState {
	b.mu.Lock()
	if b.owner == c {
		b.owner = nil
		b.coord.UnregisterEditor()
	}
	b.mu.Unlock()
	return b.state()
}

// Key forwards a keyboard shortcut to the editor c owns.
func (b *EditorBinder) Key(ctx context.Context, c *wsClient, ev format.KeyEvent) EditorState {
	b.mu.Lock()
	owns := b.owner == c
	b.mu.Unlock()
	st := b.state()
	if owns {
		st.Handled = b.coord.HandleKey(ctx, ev)
		st.Format = b.coord.State()
	}
	return st
}

func (b *EditorBinder) state() EditorState {
	st := EditorState{Format: b.coord.State()}
	if ed, ok := b.coord.Editor(); ok {
		st.Bound = true
		st.SectionID = ed.SectionID
		st.ElementKey = ed.ElementKey
	}
	return st
}

// handleEditor answers the editor envelopes. It reports false for any other
// action.
func (s *ActionSocket) handleEditor(ctx context.Context, c *wsClient, env Envelope, p toolbar.Params) bool {
	switch env.Action {
	case ActionEditorBind, ActionEditorUnbind, ActionEditorKey:
	default:
		return false
	}
	out := Reply{Type: MessageResult, ID: env.ID, Action: env.Action}
	if s.editors == nil {
		out.Error = "inline editing is not available"
		s.reply(c, out)
		return true
	}

	var (
		st  EditorState
		err error
	)
	switch env.Action {
	case ActionEditorBind:
		st, err = s.editors.Bind(ctx, c, p.Section(), p.Element())
	case ActionEditorUnbind:
		st = s.editors.Unbind(c)
	case ActionEditorKey:
		ev := format.KeyEvent{Key: p.String("key")}
		if ev.Ctrl, err = p.Bool("ctrl"); err == nil {
			ev.Meta, err = p.Bool("meta")
		}
		if err == nil {
			st = s.editors.Key(ctx, c, ev)
		}
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.OK = true
		out.Result = st
	}
	s.reply(c, out)
	return true
}
