package elements

import (
	"github.com/livetemplate/pagecraft/internal/document"
)

// Category groups element types in the picker.
type Category string

const (
	CategoryText        Category = "text"
	CategoryMedia       Category = "media"
	CategoryInteractive Category = "interactive"
)

// Definition is the catalog data for one element type.
type Definition struct {
	Type           document.ElementType
	Label          string
	Category       Category
	DefaultContent document.Content
	DefaultProps   document.Props
	RequiredProps  []string
	AllowedProps   []string
}

var textProps = []string{"className", "color", "fontSize", "fontFamily", "fontWeight", "fontStyle", "textDecoration", "textAlign", "lineHeight", "letterSpacing", "textTransform", "href", "target", "rel"}

func definitions() map[document.ElementType]Definition {
	return map[document.ElementType]Definition{
		document.TypeText: {
			Label:          "Text",
			Category:       CategoryText,
			DefaultContent: document.TextContent("Enter your text here"),
			DefaultProps:   document.Props{"className": "text-base"},
			AllowedProps:   textProps,
		},
		document.TypeRichText: {
			Label:          "Rich Text",
			Category:       CategoryText,
			DefaultContent: document.TextContent("<p>Enter your rich text here</p>"),
			DefaultProps:   document.Props{"className": "prose", "allowHTML": true},
			AllowedProps:   append([]string{"allowHTML"}, textProps...),
		},
		document.TypeHeadline: {
			Label:          "Headline",
			Category:       CategoryText,
			DefaultContent: document.TextContent("Your Headline Here"),
			DefaultProps:   document.Props{"level": "h2", "className": "text-3xl font-bold"},
			AllowedProps:   append([]string{"level"}, textProps...),
		},
		document.TypeSubheadline: {
			Label:          "Subheadline",
			Category:       CategoryText,
			DefaultContent: document.TextContent("Your subheadline here"),
			DefaultProps:   document.Props{"level": "h3", "className": "text-xl"},
			AllowedProps:   append([]string{"level"}, textProps...),
		},
		document.TypeList: {
			Label:          "List",
			Category:       CategoryText,
			DefaultContent: document.ListContent("First item", "Second item", "Third item"),
			DefaultProps:   document.Props{"ordered": false, "bulletStyle": "disc"},
			AllowedProps:   append([]string{"ordered", "bulletStyle"}, textProps...),
		},
		document.TypeButton: {
			Label:          "Button",
			Category:       CategoryInteractive,
			DefaultContent: document.TextContent("Click Here"),
			DefaultProps:   document.Props{"href": "#", "variant": "primary", "size": "medium", "target": "_self"},
			RequiredProps:  []string{"href"},
			AllowedProps:   []string{"href", "variant", "size", "target", "rel", "className", "color", "backgroundColor"},
		},
		document.TypeImage: {
			Label:          "Image",
			Category:       CategoryMedia,
			DefaultContent: document.TextContent("/placeholder-image.jpg"),
			DefaultProps:   document.Props{"alt": "Image description", "width": "auto", "height": "auto", "objectFit": "cover"},
			RequiredProps:  []string{"alt"},
			AllowedProps:   []string{"alt", "width", "height", "objectFit", "filter", "mimeType", "className"},
		},
		document.TypeVideo: {
			Label:          "Video",
			Category:       CategoryMedia,
			DefaultContent: document.TextContent("/placeholder-video.mp4"),
			DefaultProps:   document.Props{"controls": true, "autoplay": false, "muted": false, "loop": false},
			AllowedProps:   []string{"controls", "autoplay", "muted", "loop", "poster", "className"},
		},
		document.TypeForm: {
			Label:          "Form",
			Category:       CategoryInteractive,
			DefaultContent: document.TextContent("Get Started"),
			DefaultProps: document.Props{
				"submitText": "Submit",
				"action":     "",
				"fields": []any{
					map[string]any{"id": "email", "type": "email", "label": "Email", "required": true},
				},
			},
			AllowedProps: []string{"submitText", "action", "fields", "integrations", "style", "successMessage", "className"},
		},
		document.TypeIcon: {
			Label:          "Icon",
			Category:       CategoryMedia,
			DefaultContent: document.TextContent("⭐"),
			DefaultProps:   document.Props{"size": "medium", "color": "currentColor"},
			AllowedProps:   []string{"size", "color", "className"},
		},
	}
}

var catalog = func() map[document.ElementType]Definition {
	defs := definitions()
	for t, d := range defs {
		d.Type = t
		defs[t] = d
	}
	return defs
}()

// Lookup returns the catalog definition for t. Every known type has one.
func Lookup(t document.ElementType) (Definition, bool) {
	d, ok := catalog[t]
	if !ok {
		return Definition{}, false
	}
	d.DefaultContent = d.DefaultContent.Clone()
	d.DefaultProps = d.DefaultProps.Clone()
	return d, true
}

// Catalog returns every definition in element-type order.
func Catalog() []Definition {
	types := document.ElementTypes()
	out := make([]Definition, 0, len(types))
	for _, t := range types {
		d, _ := Lookup(t)
		out = append(out, d)
	}
	return out
}

func (d Definition) allows(prop string) bool {
	for _, p := range d.AllowedProps {
		if p == prop {
			return true
		}
	}
	for _, p := range d.RequiredProps {
		if p == prop {
			return true
		}
	}
	return false
}
