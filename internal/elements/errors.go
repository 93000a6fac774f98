package elements

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livetemplate/pagecraft/internal/document"
)

// Code classifies an engine failure.
type Code int

const (
	// CodeFault is an unexpected failure, usually from the store.
	CodeFault Code = iota
	// CodeNotFound means a section, element, template or backup is absent.
	CodeNotFound
	// CodeValidation means an argument was rejected.
	CodeValidation
	// CodeAborted means the user declined a confirmation.
	CodeAborted
	// CodeConflict means the document is in a state the operation cannot accept,
	// such as a duplicate key or a missing adjacent rank.
	CodeConflict
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not found"
	case CodeValidation:
		return "validation failed"
	case CodeAborted:
		return "aborted"
	case CodeConflict:
		return "conflict"
	default:
		return "fault"
	}
}

// Error is the single error type returned by the engine.
type Error struct {
	Code    Code
	Op      string
	Section string
	Element string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Code.String())
	if e.Section != "" {
		fmt.Fprintf(&b, " section=%s", e.Section)
	}
	if e.Element != "" {
		fmt.Fprintf(&b, " element=%s", e.Element)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code, so errors.Is(err, ErrNotFound) works for
// any not-found failure regardless of operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Section == "" && t.Element == "" && t.Err == nil && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound   = &Error{Code: CodeNotFound}
	ErrValidation = &Error{Code: CodeValidation}
	ErrAborted    = &Error{Code: CodeAborted}
	ErrConflict   = &Error{Code: CodeConflict}
	ErrFault      = &Error{Code: CodeFault}
)

// CodeOf returns the engine code carried by err, or CodeFault.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFault
}

func newError(code Code, op, section, element string, err error) *Error {
	return &Error{Code: code, Op: op, Section: section, Element: element, Err: err}
}

func sectionNotFound(op, section string) *Error {
	return newError(CodeNotFound, op, section, "", document.ErrSectionNotFound)
}

func elementNotFound(op, section, element string) *Error {
	return newError(CodeNotFound, op, section, element, document.ErrElementNotFound)
}

func invalid(op, section, element, format string, args ...any) *Error {
	return newError(CodeValidation, op, section, element, fmt.Errorf(format, args...))
}

func conflict(op, section, element, format string, args ...any) *Error {
	return newError(CodeConflict, op, section, element, fmt.Errorf(format, args...))
}

func aborted(op, section, element string) *Error {
	return newError(CodeAborted, op, section, element, errors.New("confirmation declined"))
}

func fault(op, section, element string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(CodeFault, op, section, element, err)
}

// errNoop short-circuits mutate without committing; callers map it to false.
var errNoop = errors.New("no change")
