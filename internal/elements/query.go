package elements

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gobwas/glob"
	"go.uber.org/multierr"

	"github.com/livetemplate/pagecraft/internal/document"
)

// GetElement returns a snapshot of one element.
func (e *Engine) GetElement(ctx context.Context, sectionID, key string) (*document.Element, error) {
	const op = "get element"
	sec, ok := e.store.Section(sectionID)
	if !ok {
		return nil, sectionNotFound(op, sectionID)
	}
	el, ok := sec.Elements[key]
	if !ok {
		return nil, elementNotFound(op, sectionID, key)
	}
	return el, nil
}

// GetAllElements returns the section's elements in position order.
func (e *Engine) GetAllElements(ctx context.Context, sectionID string) ([]*document.Element, error) {
	sec, ok := e.store.Section(sectionID)
	if !ok {
		return nil, sectionNotFound("get all elements", sectionID)
	}
	return sec.Ordered(), nil
}

// GetElementsByType returns the section's elements of type t in position order.
func (e *Engine) GetElementsByType(ctx context.Context, sectionID string, t document.ElementType) ([]*document.Element, error) {
	all, err := e.GetAllElements(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	return FilterElementsByType(all, t), nil
}

// FilterElementsByType keeps the elements of any of the given types.
func FilterElementsByType(elems []*document.Element, types ...document.ElementType) []*document.Element {
	out := make([]*document.Element, 0, len(elems))
	for _, el := range elems {
		for _, t := range types {
			if el.Type == t {
				out = append(out, el)
				break
			}
		}
	}
	return out
}

// SearchCriteria selects elements. Zero fields match everything.
type SearchCriteria struct {
	// SectionID restricts the search to one section.
	SectionID string
	Type      document.ElementType
	// ContentContains is a case-insensitive substring of the content. List
	// items are joined with a space before matching.
	ContentContains string
	// PropsMatch requires each prop to equal the given value.
	PropsMatch     document.Props
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	// KeyPattern is a glob over element keys, such as "button_*".
	KeyPattern string
	// Where is a boolean expression over ElementEnv, such as
	// `type == "button" && props.variant == "primary"`.
	Where string
}

// ElementEnv is the environment Where expressions are evaluated against.
type ElementEnv struct {
	Type     string         `expr:"type"`
	Key      string         `expr:"key"`
	Section  string         `expr:"section"`
	Content  string         `expr:"content"`
	Items    []string       `expr:"items"`
	Props    map[string]any `expr:"props"`
	Position int            `expr:"position"`
	Version  int            `expr:"version"`
}

func newElementEnv(el *document.Element) ElementEnv {
	props := map[string]any(el.Props.Clone())
	return ElementEnv{
		Type:     string(el.Type),
		Key:      el.Key,
		Section:  el.SectionID,
		Content:  el.Content.String(),
		Items:    el.Content.Items,
		Props:    props,
		Position: el.Metadata.Position,
		Version:  el.Metadata.Version,
	}
}

// matcher is SearchCriteria compiled once per search.
type matcher struct {
	SearchCriteria
	needle  string
	keyGlob glob.Glob
	where   *vm.Program
}

func compileCriteria(c SearchCriteria) (*matcher, error) {
	m := &matcher{SearchCriteria: c, needle: strings.ToLower(c.ContentContains)}
	if c.KeyPattern != "" {
		g, err := glob.Compile(c.KeyPattern)
		if err != nil {
			return nil, fmt.Errorf("compile key pattern: %w", err)
		}
		m.keyGlob = g
	}
	if c.Where != "" {
		program, err := expr.Compile(c.Where, expr.Env(ElementEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile where expression: %w", err)
		}
		m.where = program
	}
	return m, nil
}

func (m *matcher) match(el *document.Element) (bool, error) {
	if m.Type != "" && el.Type != m.Type {
		return false, nil
	}
	if m.needle != "" && !strings.Contains(strings.ToLower(el.Content.String()), m.needle) {
		return false, nil
	}
	for k, want := range m.PropsMatch {
		got, ok := el.Props[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false, nil
		}
	}
	modified := el.Metadata.LastModified
	if !m.ModifiedAfter.IsZero() && modified.Before(m.ModifiedAfter) {
		return false, nil
	}
	if !m.ModifiedBefore.IsZero() && modified.After(m.ModifiedBefore) {
		return false, nil
	}
	if m.keyGlob != nil && !m.keyGlob.Match(el.Key) {
		return false, nil
	}
	if m.where != nil {
		out, err := expr.Run(m.where, newElementEnv(el))
		if err != nil {
			return false, fmt.Errorf("evaluate where on %s: %w", el.Key, err)
		}
		if ok, _ := out.(bool); !ok {
			return false, nil
		}
	}
	return true, nil
}

// SearchElements returns every element matching c, ordered by section and
// then position. A malformed KeyPattern or Where is a validation error.
func (e *Engine) SearchElements(ctx context.Context, c SearchCriteria) ([]*document.Element, error) {
	const op = "search elements"
	m, err := compileCriteria(c)
	if err != nil {
		return nil, newError(CodeValidation, op, c.SectionID, "", err)
	}

	var sections []*document.Section
	if c.SectionID != "" {
		sec, ok := e.store.Section(c.SectionID)
		if !ok {
			return nil, sectionNotFound(op, c.SectionID)
		}
		sections = append(sections, sec)
	} else {
		content := e.store.Content()
		ids := make([]string, 0, len(content))
		for id := range content {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sections = append(sections, content[id])
		}
	}

	var out []*document.Element
	for _, sec := range sections {
		for _, el := range sec.Ordered() {
			ok, err := m.match(el)
			if err != nil {
				return nil, newError(CodeValidation, op, sec.ID, el.Key, err)
			}
			if ok {
				out = append(out, el)
			}
		}
	}
	return out, nil
}

// Validation codes.
const (
	IssueNotFound            = "NOT_FOUND"
	IssueMissingRequiredProp = "MISSING_REQUIRED_PROP"
	IssueMissingContent      = "MISSING_CONTENT"
	IssueUnknownProp         = "UNKNOWN_PROP"
)

// ValidationResult is the outcome of validating one element.
type ValidationResult struct {
	ElementKey         string           `json:"elementKey"`
	IsValid            bool             `json:"isValid"`
	Errors             []document.Issue `json:"errors"`
	Warnings           []document.Issue `json:"warnings"`
	HasRequiredContent bool             `json:"hasRequiredContent"`
	PropsValid         bool             `json:"propsValid"`
}

// ValidateElement checks required props and content. A missing element yields
// a NOT_FOUND result rather than an error; the error return is reserved for a
// missing section.
func (e *Engine) ValidateElement(ctx context.Context, sectionID, key string) (ValidationResult, error) {
	sec, ok := e.store.Section(sectionID)
	if !ok {
		return ValidationResult{}, sectionNotFound("validate element", sectionID)
	}
	el, ok := sec.Elements[key]
	if !ok {
		return ValidationResult{
			ElementKey: key,
			Errors:     []document.Issue{{Code: IssueNotFound, Message: "Element not found", Severity: "error"}},
			Warnings:   []document.Issue{},
		}, nil
	}
	return validate(el), nil
}

func validate(el *document.Element) ValidationResult {
	res := ValidationResult{
		ElementKey:         el.Key,
		Errors:             []document.Issue{},
		Warnings:           []document.Issue{},
		HasRequiredContent: !el.Content.Empty(),
		PropsValid:         true,
	}
	def, ok := Lookup(el.Type)
	if ok {
		for _, prop := range def.RequiredProps {
			if missing(el.Props[prop]) {
				res.PropsValid = false
				res.Errors = append(res.Errors, document.Issue{
					Code:     IssueMissingRequiredProp,
					Message:  "Missing required property: " + prop,
					Severity: "error",
				})
			}
		}
		keys := make([]string, 0, len(el.Props))
		for k := range el.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !def.allows(k) {
				res.Warnings = append(res.Warnings, document.Issue{
					Code:     IssueUnknownProp,
					Message:  "Unknown property: " + k,
					Severity: "warning",
				})
			}
		}
	}
	if !res.HasRequiredContent {
		res.Errors = append(res.Errors, document.Issue{
			Code:     IssueMissingContent,
			Message:  "Element has no content",
			Severity: "error",
		})
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

func missing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// ValidateAllElements validates every element of a section in position order
// and caches each result on its element. The returned error combines one
// validation error per invalid element.
func (e *Engine) ValidateAllElements(ctx context.Context, sectionID string) ([]ValidationResult, error) {
	const op = "validate all elements"
	var results []ValidationResult
	var errs error
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		changed := false
		for _, el := range sec.Ordered() {
			res := validate(el)
			results = append(results, res)
			if !res.IsValid {
				errs = multierr.Append(errs, invalid(op, sectionID, el.Key, "%s", res.Errors[0].Message))
			}
			cached := document.Validation{IsValid: res.IsValid, Errors: res.Errors, Warnings: res.Warnings}
			if !sameValidation(el.Validation, cached) || el.EditState.HasErrors == res.IsValid {
				el.Validation = cached
				el.EditState.HasErrors = !res.IsValid
				changed = true
			}
		}
		if !changed {
			return errNoop
		}
		return nil
	})
	if err != nil && err != errNoop {
		return nil, err
	}
	return results, errs
}

func sameValidation(a, b document.Validation) bool {
	return a.IsValid == b.IsValid && sameIssues(a.Errors, b.Errors) && sameIssues(a.Warnings, b.Warnings)
}

func sameIssues(a, b []document.Issue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
