package elements

import (
	"strings"

	"github.com/livetemplate/pagecraft/internal/document"
)

type rule struct {
	needles []string
	typ     document.ElementType
}

// Order matters: the first rule with a matching needle wins.
var classifyRules = []rule{
	{[]string{"icon"}, document.TypeIcon},
	{[]string{"cta", "button"}, document.TypeButton},
	{[]string{"subheadline"}, document.TypeSubheadline},
	{[]string{"headline"}, document.TypeHeadline},
	{[]string{"badge", "eyebrow"}, document.TypeText},
	{[]string{"list", "items"}, document.TypeList},
	{[]string{"image"}, document.TypeImage},
	{[]string{"video"}, document.TypeVideo},
	{[]string{"form"}, document.TypeForm},
	{[]string{"rich", "html"}, document.TypeRichText},
}

// Classify infers an element type from a free-form slot name such as
// "cta_text" or "trust_items". Precedence, highest first:
//
//	icon > cta|button > subheadline > headline > badge|eyebrow (text) >
//	list|items > image > video > form > rich|html (richtext) > text
//
// Matching is case-insensitive substring search. Names matching nothing are text.
func Classify(name string) document.ElementType {
	n := strings.ToLower(name)
	for _, r := range classifyRules {
		for _, needle := range r.needles {
			if strings.Contains(n, needle) {
				return r.typ
			}
		}
	}
	return document.TypeText
}
