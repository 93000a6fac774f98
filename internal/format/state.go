package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Action is one of the ten inline format operations.
type Action string

const (
	Bold          Action = "bold"
	Italic        Action = "italic"
	Underline     Action = "underline"
	Color         Action = "color"
	Size          Action = "size"
	Align         Action = "align"
	Font          Action = "font"
	LineHeight    Action = "line-height"
	LetterSpacing Action = "letter-spacing"
	Transform     Action = "transform"
)

var actions = []Action{Bold, Italic, Underline, Color, Size, Align, Font, LineHeight, LetterSpacing, Transform}

// Actions lists every format action.
func Actions() []Action {
	return append([]Action(nil), actions...)
}

// ParseAction accepts an action id or its state field name ("fontSize").
func ParseAction(s string) (Action, bool) {
	for _, a := range actions {
		if string(a) == s || a.Field() == s {
			return a, true
		}
	}
	return "", false
}

// Toggle reports whether the action carries a boolean value.
func (a Action) Toggle() bool {
	return a == Bold || a == Italic || a == Underline
}

// Field is the State field the action writes, in its JSON spelling.
func (a Action) Field() string {
	switch a {
	case Size:
		return "fontSize"
	case Align:
		return "textAlign"
	case Font:
		return "fontFamily"
	case LineHeight:
		return "lineHeight"
	case LetterSpacing:
		return "letterSpacing"
	case Transform:
		return "textTransform"
	default:
		return string(a)
	}
}

// CSSProperty is the style property the action maps to.
func (a Action) CSSProperty() string {
	switch a {
	case Bold:
		return "font-weight"
	case Italic:
		return "font-style"
	case Underline:
		return "text-decoration"
	case Color:
		return "color"
	case Size:
		return "font-size"
	case Align:
		return "text-align"
	case Font:
		return "font-family"
	case LineHeight:
		return "line-height"
	case LetterSpacing:
		return "letter-spacing"
	case Transform:
		return "text-transform"
	}
	return ""
}

// State is the cached format of the bound editor.
type State struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Underline     bool   `json:"underline"`
	Color         string `json:"color"`
	FontSize      string `json:"fontSize"`
	FontFamily    string `json:"fontFamily"`
	TextAlign     string `json:"textAlign"`
	LineHeight    string `json:"lineHeight"`
	LetterSpacing string `json:"letterSpacing"`
	TextTransform string `json:"textTransform"`
}

// DefaultState is the format of unstyled text.
func DefaultState() State {
	return State{
		Color:         "#000000",
		FontSize:      "16px",
		FontFamily:    "inherit",
		TextAlign:     "left",
		LineHeight:    "1.5",
		LetterSpacing: "normal",
		TextTransform: "none",
	}
}

// Value returns the state field written by a.
func (s State) Value(a Action) any {
	switch a {
	case Bold:
		return s.Bold
	case Italic:
		return s.Italic
	case Underline:
		return s.Underline
	case Color:
		return s.Color
	case Size:
		return s.FontSize
	case Align:
		return s.TextAlign
	case Font:
		return s.FontFamily
	case LineHeight:
		return s.LineHeight
	case LetterSpacing:
		return s.LetterSpacing
	case Transform:
		return s.TextTransform
	}
	return nil
}

// With returns a copy of s with the field for a set to value. The value must
// already be valid for a.
func (s State) With(a Action, value any) State {
	switch a {
	case Bold:
		s.Bold, _ = value.(bool)
	case Italic:
		s.Italic, _ = value.(bool)
	case Underline:
		s.Underline, _ = value.(bool)
	case Color:
		s.Color, _ = value.(string)
	case Size:
		s.FontSize, _ = value.(string)
	case Align:
		s.TextAlign, _ = value.(string)
	case Font:
		s.FontFamily, _ = value.(string)
	case LineHeight:
		s.LineHeight, _ = value.(string)
	case LetterSpacing:
		s.LetterSpacing, _ = value.(string)
	case Transform:
		s.TextTransform, _ = value.(string)
	}
	return s
}

// Commands returns the commands that turn any state into s.
func (s State) Commands() []Command {
	out := make([]Command, 0, len(actions))
	for _, a := range actions {
		out = append(out, Command{Action: a, Value: s.Value(a)})
	}
	return out
}

var (
	hexColor      = regexp.MustCompile(`(?i)^#([0-9a-f]{3}){1,2}$`)
	fontSize      = regexp.MustCompile(`^\d+(\.\d+)?(px|em|rem|%)$`)
	lineHeight    = regexp.MustCompile(`^\d+(\.\d+)?(px|em|rem|%)?$`)
	letterSpacing = regexp.MustCompile(`^(-?\d+(\.\d+)?(px|em|rem)|0|normal)$`)
)

var (
	alignments = []string{"left", "center", "right", "justify"}
	transforms = []string{"none", "uppercase", "lowercase", "capitalize"}
)

// Alignments lists the accepted text-align values.
func Alignments() []string { return append([]string(nil), alignments...) }

// Transforms lists the accepted text-transform values.
func Transforms() []string { return append([]string(nil), transforms...) }

// ValidColor accepts hex colors and rgb()/hsl() functions.
func ValidColor(v string) bool {
	return hexColor.MatchString(v) || strings.HasPrefix(v, "rgb") || strings.HasPrefix(v, "hsl")
}

// Normalize checks value against the rules of a and returns it in canonical
// form. Toggle actions accept bools and the strings "true"/"false".
func Normalize(a Action, value any) (any, error) {
	if a.Toggle() {
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", a, v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("invalid %s value %v", a, value)
		}
	}

	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("invalid %s value %v", a, value)
	}
	s = strings.TrimSpace(s)
	valid := true
	switch a {
	case Color:
		valid = ValidColor(s)
	case Size:
		valid = fontSize.MatchString(s)
	case Align:
		valid = contains(alignments, s)
	case Font:
		valid = s != ""
	case LineHeight:
		valid = lineHeight.MatchString(s)
	case LetterSpacing:
		valid = letterSpacing.MatchString(s)
	case Transform:
		valid = contains(transforms, s)
	default:
		return nil, fmt.Errorf("unknown format action %q", a)
	}
	if !valid {
		return nil, fmt.Errorf("invalid %s value %q", a, s)
	}
	return s, nil
}

// InvalidMessage is the announcement made when a value is rejected for a.
func InvalidMessage(a Action) string {
	switch a {
	case Color:
		return "Invalid color format"
	case Size:
		return "Invalid font size format"
	case Align:
		return "Invalid text alignment"
	case Font:
		return "Invalid font family"
	case LineHeight:
		return "Invalid line height format"
	case LetterSpacing:
		return "Invalid letter spacing format"
	case Transform:
		return "Invalid text transform"
	}
	return "Invalid " + string(a) + " value"
}

// CSSValue renders a normalized value for the action's CSS property.
func CSSValue(a Action, value any) string {
	switch a {
	case Bold:
		if b, _ := value.(bool); b {
			return "bold"
		}
		return "normal"
	case Italic:
		if b, _ := value.(bool); b {
			return "italic"
		}
		return "normal"
	case Underline:
		if b, _ := value.(bool); b {
			return "underline"
		}
		return "none"
	}
	return fmt.Sprint(value)
}

// FromComputedStyle builds a State from computed CSS properties, as read off
// a rendered node. Weights of 600 and above count as bold.
func FromComputedStyle(css map[string]string) State {
	s := DefaultState()
	weight := css["font-weight"]
	if n, err := strconv.Atoi(weight); err == nil {
		s.Bold = n >= 600
	} else {
		s.Bold = weight == "bold" || weight == "bolder"
	}
	s.Italic = css["font-style"] == "italic"
	s.Underline = strings.Contains(css["text-decoration"], "underline") ||
		strings.Contains(css["text-decoration-line"], "underline")
	set := func(dst *string, prop string) {
		if v := css[prop]; v != "" {
			*dst = v
		}
	}
	set(&s.Color, "color")
	set(&s.FontSize, "font-size")
	set(&s.FontFamily, "font-family")
	set(&s.TextAlign, "text-align")
	set(&s.LineHeight, "line-height")
	set(&s.LetterSpacing, "letter-spacing")
	set(&s.TextTransform, "text-transform")
	return s
}

// Preset is a named bundle of format commands.
type Preset struct {
	Name     string
	Label    string
	Commands []Command
}

var presets = []Preset{
	{Name: "heading-1", Label: "Heading 1", Commands: []Command{
		{Size, "2rem"}, {Font, "system-ui, sans-serif"}, {LineHeight, "1.2"}, {Transform, "none"},
	}},
	{Name: "heading-2", Label: "Heading 2", Commands: []Command{
		{Size, "1.5rem"}, {Font, "system-ui, sans-serif"}, {LineHeight, "1.3"}, {Transform, "none"},
	}},
	{Name: "body-text", Label: "Body Text", Commands: []Command{
		{Size, "1rem"}, {Font, "system-ui, sans-serif"}, {LineHeight, "1.6"}, {Transform, "none"},
	}},
	{Name: "caption", Label: "Caption", Commands: []Command{
		{Size, "0.875rem"}, {Font, "system-ui, sans-serif"}, {LineHeight, "1.4"}, {Color, "#6B7280"}, {Transform, "none"},
	}},
	{Name: "quote", Label: "Quote", Commands: []Command{
		{Size, "1.125rem"}, {Font, "Georgia, serif"}, {LineHeight, "1.6"}, {Italic, true}, {Color, "#4B5563"}, {Transform, "none"},
	}},
}

// Presets returns the built-in presets.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	for i, p := range presets {
		p.Commands = append([]Command(nil), p.Commands...)
		out[i] = p
	}
	return out
}

// LookupPreset finds a preset by name or label, case-insensitively.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Label, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Option lists for pickers.
var (
	FontFamilies   = []string{"system-ui, sans-serif", "Inter, sans-serif", "Helvetica, Arial, sans-serif", "Georgia, serif", "Times New Roman, serif", "Courier New, monospace", "ui-monospace, monospace"}
	FontSizes      = []string{"0.75rem", "0.875rem", "1rem", "1.125rem", "1.25rem", "1.5rem", "1.875rem", "2.25rem"}
	LineHeights    = []string{"1", "1.2", "1.4", "1.5", "1.6", "1.8", "2"}
	LetterSpacings = []string{"-0.05em", "-0.025em", "0", "0.025em", "0.05em", "0.1em"}
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
