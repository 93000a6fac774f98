package format

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
)

// Selection addresses the element an inline action targets.
type Selection struct {
	SectionID  string `json:"sectionId"`
	ElementKey string `json:"elementKey"`
}

// Animator transitions a style property on the bound editor.
type Animator interface {
	Animate(ctx context.Context, ed Editor, property, from, to string) error
}

// InlineActions are the validated, change-tracked format handlers used by the
// toolbar while an inline editor is bound.
type InlineActions struct {
	coord    *Coordinator
	store    document.Store
	animator Animator
	logger   *zap.Logger
	source   string
}

// NewInlineActions builds the handlers. animator may be nil, in which case
// every change is applied directly.
func NewInlineActions(coord *Coordinator, store document.Store, animator Animator, logger *zap.Logger) *InlineActions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineActions{
		coord:    coord,
		store:    store,
		animator: animator,
		logger:   logger.Named("inline"),
		source:   "inline-editor",
	}
}

// Coordinator returns the coordinator the handlers act through.
func (a *InlineActions) Coordinator() *Coordinator {
	return a.coord
}

// ApplyTextFormat sets a toggle action (bold, italic, underline) to on.
func (a *InlineActions) ApplyTextFormat(ctx context.Context, sel Selection, action Action, on bool) (bool, error) {
	if !action.Toggle() {
		return a.reject(sel, "apply text format", fmt.Sprintf("Invalid format: %s", action),
			fmt.Errorf("%s is not a toggle format", action))
	}
	verb := "removed"
	if on {
		verb = "applied"
	}
	return a.apply(ctx, sel, "apply text format", action, on, func(any) string {
		return fmt.Sprintf("%s %s", action, verb)
	})
}

// ChangeTextColor sets the text color. Hex, rgb() and hsl() are accepted.
func (a *InlineActions) ChangeTextColor(ctx context.Context, sel Selection, color string) (bool, error) {
	return a.apply(ctx, sel, "change text color", Color, color, func(v any) string {
		return fmt.Sprintf("Text color changed to %v", v)
	})
}

// ChangeFontSize sets the font size, such as "18px" or "1.25rem".
func (a *InlineActions) ChangeFontSize(ctx context.Context, sel Selection, size string) (bool, error) {
	return a.apply(ctx, sel, "change font size", Size, size, func(v any) string {
		return fmt.Sprintf("Font size changed to %v", v)
	})
}

// ChangeTextAlign sets left, center, right or justify.
func (a *InlineActions) ChangeTextAlign(ctx context.Context, sel Selection, align string) (bool, error) {
	return a.apply(ctx, sel, "change text align", Align, align, func(v any) string {
		return fmt.Sprintf("Text aligned %v", v)
	})
}

// ChangeFontFamily sets the font family.
func (a *InlineActions) ChangeFontFamily(ctx context.Context, sel Selection, family string) (bool, error) {
	return a.apply(ctx, sel, "change font family", Font, family, func(v any) string {
		return fmt.Sprintf("Font family changed to %v", v)
	})
}

// ChangeLineHeight sets a unitless or unit line height.
func (a *InlineActions) ChangeLineHeight(ctx context.Context, sel Selection, height string) (bool, error) {
	return a.apply(ctx, sel, "change line height", LineHeight, height, func(v any) string {
		return fmt.Sprintf("Line height changed to %v", v)
	})
}

// ChangeLetterSpacing sets letter spacing, such as "0.05em" or "normal".
func (a *InlineActions) ChangeLetterSpacing(ctx context.Context, sel Selection, spacing string) (bool, error) {
	return a.apply(ctx, sel, "change letter spacing", LetterSpacing, spacing, func(v any) string {
		return fmt.Sprintf("Letter spacing changed to %v", v)
	})
}

// ChangeTextTransform sets none, uppercase, lowercase or capitalize.
func (a *InlineActions) ChangeTextTransform(ctx context.Context, sel Selection, transform string) (bool, error) {
	return a.apply(ctx, sel, "change text transform", Transform, transform, func(v any) string {
		label := fmt.Sprint(v)
		if label == "none" {
			label = "normal"
		}
		return "Text transform changed to " + label
	})
}

// ClearFormatting resets the bound editor to the default state.
func (a *InlineActions) ClearFormatting(ctx context.Context, sel Selection) (bool, error) {
	before := a.coord.State()
	ok, err := a.coord.ClearFormatting(ctx)
	if !ok || err != nil {
		return ok, err
	}
	a.track(sel, "clear-all", before, a.coord.State())
	a.announce("All formatting cleared")
	return true, nil
}

// ApplyBatchFormat validates every command first and applies them only if
// all are valid.
func (a *InlineActions) ApplyBatchFormat(ctx context.Context, sel Selection, cmds []Command) (bool, error) {
	const op = "apply batch format"
	if !a.coord.CanApplyFormat() {
		return false, nil
	}
	var problems []string
	normalized := make([]Command, 0, len(cmds))
	for _, cmd := range cmds {
		v, err := Normalize(cmd.Action, cmd.Value)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		normalized = append(normalized, Command{Action: cmd.Action, Value: v})
	}
	if len(problems) > 0 {
		return a.reject(sel, op, "Invalid formats: "+strings.Join(problems, ", "),
			fmt.Errorf("%s", strings.Join(problems, "; ")))
	}

	before := a.coord.State()
	for _, cmd := range normalized {
		if _, err := a.coord.ExecuteFormat(ctx, cmd); err != nil {
			return false, err
		}
	}
	a.track(sel, "batch-update", before, a.coord.State())
	a.announce(fmt.Sprintf("Applied %d format changes", len(normalized)))
	return true, nil
}

// SyncFormatState re-reads the format state from the bound node.
func (a *InlineActions) SyncFormatState(ctx context.Context) (bool, error) {
	ok, err := a.coord.SyncFromNode(ctx)
	if ok {
		a.announce("Format state synchronized")
	}
	return ok, err
}

func (a *InlineActions) apply(ctx context.Context, sel Selection, op string, action Action, value any, done func(any) string) (bool, error) {
	if !a.coord.CanApplyFormat() {
		return false, nil
	}
	v, err := Normalize(action, value)
	if err != nil {
		return a.reject(sel, op, InvalidMessage(action), err)
	}

	old := a.coord.State().Value(action)
	if err := a.execute(ctx, action, old, v); err != nil {
		return false, err
	}
	a.track(sel, action.Field(), old, v)
	a.announce(done(v))
	return true, nil
}

// execute animates string-valued changes when an animator is set and falls
// back to direct execution when the animation fails.
func (a *InlineActions) execute(ctx context.Context, action Action, old, v any) error {
	from, fromOK := old.(string)
	to, toOK := v.(string)
	ed, bound := a.coord.Editor()
	if a.animator != nil && fromOK && toOK && bound {
		err := a.animator.Animate(ctx, ed, action.CSSProperty(), from, to)
		if err == nil {
			a.coord.commit(Command{Action: action, Value: v})
			return nil
		}
		a.logger.Warn("animation failed, applying directly",
			zap.String("section", ed.SectionID),
			zap.String("element", ed.ElementKey),
			zap.String("action", string(action)),
			zap.Error(err))
	}
	_, err := a.coord.ExecuteFormat(ctx, Command{Action: action, Value: v})
	return err
}

func (a *InlineActions) reject(sel Selection, op, text string, err error) (bool, error) {
	a.announce(text)
	return false, &elements.Error{
		Code:    elements.CodeValidation,
		Op:      op,
		Section: sel.SectionID,
		Element: sel.ElementKey,
		Err:     err,
	}
}

func (a *InlineActions) track(sel Selection, property string, old, updated any) {
	if a.store == nil {
		return
	}
	a.store.MarkAsCustomized(sel.SectionID)
	a.store.TrackChange(document.ChangeEntry{
		Type:       document.ChangeFormat,
		SectionID:  sel.SectionID,
		ElementKey: sel.ElementKey,
		OldValue:   map[string]any{property: old},
		NewValue:   map[string]any{property: updated},
		Source:     a.source,
	})
}

func (a *InlineActions) announce(text string) {
	if a.store != nil {
		a.store.AnnounceLiveRegion(text)
	}
}
