// Package picker holds the element picker: a small popover bound to one
// section that lists insertable element types and adds the chosen one.
package picker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
)

// Position is the screen anchor the picker opens at.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Options are carried from Show to the element added by Pick.
type Options struct {
	AutoFocus bool `json:"autoFocus"`
	// Categories limits the listed types. Empty means every category.
	Categories        []elements.Category    `json:"categories,omitempty"`
	RestrictedTypes   []document.ElementType `json:"restrictedTypes,omitempty"`
	RestrictionReason string                 `json:"restrictionReason,omitempty"`

	Position     *int                `json:"position,omitempty"`
	InsertMode   elements.InsertMode `json:"insertMode,omitempty"`
	ReferenceKey string              `json:"referenceElementKey,omitempty"`
}

// State is a snapshot of the picker.
type State struct {
	Visible   bool     `json:"visible"`
	SectionID string   `json:"sectionId,omitempty"`
	Position  Position `json:"position"`
	Options   Options  `json:"options"`
}

// Picker is safe for concurrent use.
type Picker struct {
	mu     sync.Mutex
	state  State
	engine *elements.Engine
	logger *zap.Logger
}

// New returns a hidden picker that adds elements through engine.
func New(engine *elements.Engine, logger *zap.Logger) *Picker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Picker{engine: engine, logger: logger.Named("picker")}
}

// Show opens the picker for sectionID, replacing any open picker.
func (p *Picker) Show(sectionID string, pos Position, opts Options) error {
	if _, ok := p.engine.Store().Section(sectionID); !ok {
		return &elements.Error{Code: elements.CodeNotFound, Op: "show picker", Section: sectionID, Err: document.ErrSectionNotFound}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{Visible: true, SectionID: sectionID, Position: pos, Options: opts}
	p.logger.Debug("picker shown", zap.String("section", sectionID))
	return nil
}

// Hide closes the picker. Hiding a hidden picker is a no-op.
func (p *Picker) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{}
}

// State returns the current picker state.
func (p *Picker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Available lists the catalog entries the open picker offers.
func (p *Picker) Available() []elements.Definition {
	opts := p.State().Options
	var out []elements.Definition
	for _, def := range elements.Catalog() {
		if len(opts.Categories) > 0 && !hasCategory(opts.Categories, def.Category) {
			continue
		}
		if isRestricted(opts.RestrictedTypes, def.Type) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Pick adds typeOrName to the open section with the pending options and
// closes the picker. The picker stays open when the add fails.
func (p *Picker) Pick(ctx context.Context, typeOrName string) (string, error) {
	const op = "pick element"
	st := p.State()
	if !st.Visible {
		return "", &elements.Error{Code: elements.CodeAborted, Op: op, Err: errors.New("picker is not open")}
	}
	if t, ok := document.ParseElementType(typeOrName); ok && isRestricted(st.Options.RestrictedTypes, t) {
		reason := st.Options.RestrictionReason
		if reason == "" {
			reason = "not allowed in this section"
		}
		return "", &elements.Error{Code: elements.CodeValidation, Op: op, Section: st.SectionID,
			Err: fmt.Errorf("%s: %s", t, reason)}
	}

	key, err := p.engine.AddElement(ctx, st.SectionID, typeOrName, elements.AddOptions{
		Position:     st.Options.Position,
		InsertMode:   st.Options.InsertMode,
		ReferenceKey: st.Options.ReferenceKey,
		AutoFocus:    st.Options.AutoFocus,
	})
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	// Only close the picker this call picked from.
	if p.state.Visible && p.state.SectionID == st.SectionID {
		p.state = State{}
	}
	p.mu.Unlock()
	return key, nil
}

func hasCategory(list []elements.Category, c elements.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func isRestricted(list []document.ElementType, t document.ElementType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
