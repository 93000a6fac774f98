// Package toolbar maps toolbar action ids to handlers. Handlers delegate to
// the element engine for document changes and to the inline format
// coordinator or a style applier for visual changes. The dispatcher owns the
// cross-cutting policy: capability gating, timing, change tracking and
// recovery from failing handlers.
package toolbar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/format"
	"github.com/livetemplate/pagecraft/internal/kv"
	"github.com/livetemplate/pagecraft/internal/picker"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrUnavailable   = errors.New("action not available in current context")
	ErrNotSupported  = errors.New("action not supported")
	ErrPanic         = errors.New("action panicked")
)

// DefaultMaxImageBytes caps replace-image uploads.
const DefaultMaxImageBytes = 5 << 20

// Regenerator produces new content for an element or a whole section.
type Regenerator interface {
	RegenerateElement(ctx context.Context, sectionID, key string) error
	RegenerateSection(ctx context.Context, sectionID, guidance string) error
}

// SectionStore is the document store plus the section-level operations the
// section toolbar needs.
type SectionStore interface {
	document.Store
	RemoveSection(id string) error
	DuplicateSection(id, newID string) error
	MoveSection(id string, delta int) (bool, error)
}

// Result is the outcome of one dispatch.
type Result struct {
	Action   Action        `json:"action"`
	OK       bool          `json:"ok"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Request is one entry of a batch dispatch.
type Request struct {
	Action string `json:"actionId"`
	Params Params `json:"params,omitempty"`
}

type handler func(ctx context.Context, p Params) (bool, error)

// Dispatcher executes toolbar actions.
type Dispatcher struct {
	engine *elements.Engine
	store  SectionStore

	inline    *format.InlineActions
	styles    capability.StyleApplier
	chooser   capability.Chooser
	confirmer capability.Confirmer
	regen     Regenerator
	picker    *picker.Picker
	assets    kv.Store

	capabilities  func(Action) bool
	layouts       func() []string
	maxImageBytes int64
	logger        *zap.Logger
	source        string
	now           func() time.Time

	handlers map[Action]handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInlineActions routes text actions through the format coordinator when
// it is bound to the target element.
func WithInlineActions(a *format.InlineActions) Option {
	return func(d *Dispatcher) { d.inline = a }
}

// WithStyleApplier sets where unbound text and image styles are painted.
func WithStyleApplier(s capability.StyleApplier) Option {
	return func(d *Dispatcher) { d.styles = s }
}

// WithChooser sets the option picker used when a parameter is omitted.
func WithChooser(c capability.Chooser) Option {
	return func(d *Dispatcher) { d.chooser = c }
}

// WithConfirmer sets the confirmation prompt for destructive actions.
func WithConfirmer(c capability.Confirmer) Option {
	return func(d *Dispatcher) { d.confirmer = c }
}

// WithRegenerator enables the regeneration actions.
func WithRegenerator(r Regenerator) Option {
	return func(d *Dispatcher) { d.regen = r }
}

// WithPicker makes add-element without a type open the element picker.
func WithPicker(p *picker.Picker) Option {
	return func(d *Dispatcher) { d.picker = p }
}

// WithAssetStore sets where uploaded images are kept.
func WithAssetStore(s kv.Store) Option {
	return func(d *Dispatcher) { d.assets = s }
}

// WithCapabilities gates actions. The default allows every action.
func WithCapabilities(fn func(Action) bool) Option {
	return func(d *Dispatcher) { d.capabilities = fn }
}

// WithLayouts lists the layouts change-layout may switch to.
func WithLayouts(fn func() []string) Option {
	return func(d *Dispatcher) { d.layouts = fn }
}

// WithMaxImageBytes overrides DefaultMaxImageBytes.
func WithMaxImageBytes(n int64) Option {
	return func(d *Dispatcher) { d.maxImageBytes = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithSource sets the source recorded on action change entries.
func WithSource(source string) Option {
	return func(d *Dispatcher) { d.source = source }
}

// New creates a Dispatcher. store must be the store engine writes through.
func New(engine *elements.Engine, store SectionStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:        engine,
		store:         store,
		confirmer:     capability.AlwaysConfirm,
		assets:        kv.NewMemoryStore(),
		capabilities:  func(Action) bool { return true },
		maxImageBytes: DefaultMaxImageBytes,
		logger:        zap.NewNop(),
		source:        "toolbar",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("toolbar")
	d.handlers = map[Action]handler{
		ChangeLayout:       d.changeLayout,
		AddElement:         d.addElement,
		MoveSection:        d.moveSection,
		BackgroundSettings: d.backgroundSettings,
		RegenerateSection:  d.regenerateSection,
		DuplicateSection:   d.duplicateSection,
		DeleteSection:      d.deleteSection,

		ApplyTextFormat:     d.applyTextFormat,
		ChangeTextColor:     d.textStyle(format.Color, "color", nil),
		ChangeFontSize:      d.textStyle(format.Size, "size", nil),
		ChangeTextAlign:     d.textStyle(format.Align, "align", format.Alignments()),
		ChangeFontFamily:    d.textStyle(format.Font, "fontFamily", format.FontFamilies),
		ChangeLineHeight:    d.textStyle(format.LineHeight, "lineHeight", format.LineHeights),
		ChangeLetterSpacing: d.textStyle(format.LetterSpacing, "letterSpacing", format.LetterSpacings),
		ChangeTextTransform: d.textStyle(format.Transform, "transform", format.Transforms()),
		ClearFormatting:     d.clearFormatting,
		ApplyBatchFormat:    d.applyBatchFormat,
		TextRegenerate:      d.regenerateElement,

		DuplicateElement:  d.duplicateElement,
		DeleteElement:     d.deleteElement,
		ElementStyle:      d.elementStyle,
		ChangeElementType: d.changeElementType,
		ConvertCTAToForm:  d.convertCTAToForm,
		LinkSettings:      d.linkSettings,
		ElementRegenerate: d.regenerateElement,

		ReplaceImage: d.replaceImage,
		StockPhotos:  d.stockPhotos,
		EditImage:    d.editImage,
		AltText:      d.altText,
		ImageFilters: d.imageFilters,
		Optimize:     d.optimizeImage,
		DeleteImage:  d.deleteImage,

		AddField:      d.addField,
		RemoveField:   d.removeField,
		FieldRequired: d.toggleFieldRequired,
		FormSettings:  d.formSettings,
		Integrations:  d.formIntegrations,
		FormStyling:   d.formStyling,
	}
	return d
}

// Available reports whether the capability gate allows a.
func (d *Dispatcher) Available(a Action) bool {
	_, ok := d.handlers[a]
	return ok && d.capabilities(a)
}

// AvailableActions lists the actions the capability gate allows.
func (d *Dispatcher) AvailableActions() []Action {
	var out []Action
	for _, a := range Actions() {
		if d.Available(a) {
			out = append(out, a)
		}
	}
	return out
}

// Execute runs one action. Failures never propagate as panics: they are
// logged and reported in the Result. A successful action appends one action
// change entry and triggers auto-save.
func (d *Dispatcher) Execute(ctx context.Context, id string, p Params) Result {
	start := time.Now()
	a, err := ParseAction(id)
	if err != nil {
		d.logger.Warn("unknown action", zap.String("action", id))
		return result(Action(id), false, err, time.Since(start))
	}
	if !d.Available(a) {
		d.logger.Warn("action not available", zap.String("action", id))
		return result(a, false, fmt.Errorf("%w: %s", ErrUnavailable, a), time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return result(a, false, err, time.Since(start))
	}

	ok, err := d.run(ctx, a, p)
	res := result(a, ok, err, time.Since(start))
	fields := []zap.Field{
		zap.String("action", id),
		zap.String("section", p.Section()),
		zap.String("element", p.Element()),
		zap.Duration("duration", res.Duration),
	}
	switch {
	case err == nil:
		d.logger.Info("action executed", append(fields, zap.Bool("ok", ok))...)
	case errors.Is(err, elements.ErrAborted):
		d.logger.Info("action cancelled", fields...)
	case errors.Is(err, elements.ErrValidation), errors.Is(err, elements.ErrNotFound), errors.Is(err, ErrNotSupported):
		d.logger.Warn("action rejected", append(fields, zap.Error(err))...)
	default:
		d.logger.Error("action failed", append(fields, zap.Error(err))...)
	}

	if res.OK {
		d.store.TrackChange(document.ChangeEntry{
			Type:       document.ChangeAction,
			SectionID:  p.Section(),
			ElementKey: p.Element(),
			NewValue:   map[string]any{"actionId": id, "params": loggable(p)},
			Source:     d.source,
			Timestamp:  d.now(),
		})
		d.store.TriggerAutoSave()
	}
	return res
}

// ExecuteBatch runs requests in order. Once ctx is done the remaining
// requests fail with the context error.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, reqs []Request) []Result {
	out := make([]Result, 0, len(reqs))
	for _, r := range reqs {
		if err := ctx.Err(); err != nil {
			out = append(out, result(Action(r.Action), false, err, 0))
			continue
		}
		out = append(out, d.Execute(ctx, r.Action, r.Params))
	}
	return out
}

func (d *Dispatcher) run(ctx context.Context, a Action, p Params) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action panicked",
				zap.String("action", string(a)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			ok, err = false, fmt.Errorf("%w: %s: %v", ErrPanic, a, r)
		}
	}()
	if p == nil {
		p = Params{}
	}
	return d.handlers[a](ctx, p)
}

func result(a Action, ok bool, err error, dur time.Duration) Result {
	r := Result{Action: a, OK: ok && err == nil, Err: err, Duration: dur}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// loggable drops binary payloads from params recorded in the change log.
func loggable(p Params) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if b, ok := v.([]byte); ok {
			out[k] = fmt.Sprintf("<%d bytes>", len(b))
			continue
		}
		if k == "data" {
			if s, ok := v.(string); ok && len(s) > 256 {
				out[k] = fmt.Sprintf("<%d chars>", len(s))
				continue
			}
		}
		out[k] = v
	}
	return out
}

// selection reads the sectionId/elementKey pair an element action targets.
func selection(op string, p Params) (string, string, error) {
	sectionID, key := p.Section(), p.Element()
	if sectionID == "" || key == "" {
		return "", "", invalid(op, sectionID, key, "sectionId and elementKey are required")
	}
	return sectionID, key, nil
}

func (d *Dispatcher) confirm(ctx context.Context, op, sectionID, key, message string) error {
	ok, err := d.confirmer.Confirm(ctx, message)
	if err != nil {
		return &elements.Error{Code: elements.CodeFault, Op: op, Section: sectionID, Element: key, Err: err}
	}
	if !ok {
		return &elements.Error{Code: elements.CodeAborted, Op: op, Section: sectionID, Element: key, Err: errors.New("confirmation declined")}
	}
	return nil
}

// choose returns p[param] when given and otherwise asks the chooser to pick
// from options. With strict set, a given value must also be one of options.
func (d *Dispatcher) choose(ctx context.Context, op string, p Params, param, prompt string, options []string, strict bool) (string, error) {
	if v := p.String(param); v != "" {
		if strict && !contains(options, v) {
			return "", invalid(op, p.Section(), p.Element(), "%s %q is not one of %v", param, v, options)
		}
		return v, nil
	}
	if d.chooser == nil {
		return "", invalid(op, p.Section(), p.Element(), "%s is required", param)
	}
	v, err := d.chooser.Choose(ctx, prompt, options)
	if errors.Is(err, capability.ErrNoChoice) {
		return "", &elements.Error{Code: elements.CodeAborted, Op: op, Section: p.Section(), Element: p.Element(), Err: err}
	}
	if err != nil {
		return "", &elements.Error{Code: elements.CodeFault, Op: op, Section: p.Section(), Element: p.Element(), Err: err}
	}
	if !contains(options, v) {
		return "", invalid(op, p.Section(), p.Element(), "chooser returned unknown option %q", v)
	}
	return v, nil
}

func (d *Dispatcher) announce(text string) {
	d.store.AnnounceLiveRegion(text)
}

func invalid(op, sectionID, key, msg string, args ...any) *elements.Error {
	return &elements.Error{Code: elements.CodeValidation, Op: op, Section: sectionID, Element: key, Err: fmt.Errorf(msg, args...)}
}

func notSupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrNotSupported)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
