// Package importer turns a markdown document into section elements.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/security"
)

// DefaultLayout is used for sections the import creates without a layout.
const DefaultLayout = "imported"

// ErrInvalid marks input the importer cannot use: malformed frontmatter or a
// missing target section.
var ErrInvalid = errors.New("invalid import")

// Frontmatter is the optional YAML header of an imported file.
type Frontmatter struct {
	Section string `yaml:"section"`
	Layout  string `yaml:"layout"`
}

// Block is one element parsed from markdown.
type Block struct {
	Type    document.ElementType
	Content document.Content
	Props   document.Props
}

// Options tunes Import.
type Options struct {
	// Replace removes the section's existing elements first.
	Replace bool
}

// Result reports what an import added.
type Result struct {
	SectionID string   `json:"sectionId"`
	Created   bool     `json:"created"`
	Keys      []string `json:"keys"`
	Removed   int      `json:"removed"`
	// Skipped lists the markdown node kinds that have no element form.
	Skipped []string `json:"skipped,omitempty"`
}

// Importer adds parsed blocks through the element engine.
type Importer struct {
	engine *elements.Engine
	logger *zap.Logger
}

// New creates an Importer.
func New(engine *elements.Engine, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{engine: engine, logger: logger.Named("importer")}
}

// Import parses content and appends its blocks to sectionID. The frontmatter
// section overrides an empty sectionID. A missing section is created with the
// frontmatter layout.
func (i *Importer) Import(ctx context.Context, sectionID string, content []byte, opts Options) (Result, error) {
	fm, blocks, skipped, err := Parse(content)
	if err != nil {
		return Result{}, err
	}
	if sectionID == "" {
		sectionID = fm.Section
	}
	if sectionID == "" {
		return Result{}, fmt.Errorf("%w: no section given and none in frontmatter", ErrInvalid)
	}
	res := Result{SectionID: sectionID, Skipped: skipped}

	created, err := i.ensureSection(sectionID, fm.Layout)
	if err != nil {
		return res, err
	}
	res.Created = created
	if !created && opts.Replace {
		existing, err := i.engine.GetAllElements(ctx, sectionID)
		if err != nil {
			return res, err
		}
		for _, el := range existing {
			if _, err := i.engine.RemoveElement(ctx, sectionID, el.Key, elements.RemoveOptions{SkipConfirm: true}); err != nil {
				return res, err
			}
			res.Removed++
		}
	}

	for _, b := range blocks {
		c := b.Content
		key, err := i.engine.AddElement(ctx, sectionID, string(b.Type), elements.AddOptions{Content: &c, Props: b.Props})
		if err != nil {
			return res, fmt.Errorf("import: add %s: %w", b.Type, err)
		}
		res.Keys = append(res.Keys, key)
	}
	i.logger.Info("markdown imported",
		zap.String("section", sectionID),
		zap.Int("elements", len(res.Keys)),
		zap.Strings("skipped", skipped))
	return res, nil
}

// ensureSection creates sectionID with layout unless it exists. The check and
// the create run under the engine's section lock.
func (i *Importer) ensureSection(sectionID, layout string) (bool, error) {
	unlock := i.engine.LockSections(sectionID)
	defer unlock()
	store := i.engine.Store()
	if _, ok := store.Section(sectionID); ok {
		return false, nil
	}
	if layout == "" {
		layout = DefaultLayout
	}
	if err := store.SetSection(sectionID, document.SectionPatch{Layout: &layout}); err != nil {
		return false, fmt.Errorf("import: create section: %w", err)
	}
	return true, nil
}

// Parse extracts the frontmatter and element blocks of a markdown document.
// Node kinds without an element form are returned in skipped.
func Parse(content []byte) (*Frontmatter, []Block, []string, error) {
	fm, body, err := extractFrontmatter(content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: failed to parse frontmatter: %w", ErrInvalid, err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))
	doc := md.Parser().Parse(text.NewReader(body))

	var blocks []Block
	var skipped []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		b, ok, err := block(md, n, body)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			skipped = append(skipped, n.Kind().String())
			continue
		}
		blocks = append(blocks, b)
	}
	return fm, blocks, skipped, nil
}

func block(md goldmark.Markdown, n ast.Node, source []byte) (Block, bool, error) {
	switch n := n.(type) {
	case *ast.Heading:
		t := document.TypeSubheadline
		switch {
		case n.Level == 1:
			t = document.TypeHeadline
		case n.Level > 3:
			t = document.TypeText
		}
		props := document.Props{}
		if t != document.TypeText {
			props["level"] = fmt.Sprintf("h%d", n.Level)
		}
		return Block{Type: t, Content: document.TextContent(plainText(n, source)), Props: props}, true, nil

	case *ast.List:
		var items []string
		for li := n.FirstChild(); li != nil; li = li.NextSibling() {
			items = append(items, plainText(li, source))
		}
		return Block{Type: document.TypeList, Content: document.ListContent(items...), Props: document.Props{"ordered": n.IsOrdered()}}, true, nil

	case *ast.Paragraph:
		if only := soleChild(n); only != nil {
			switch c := only.(type) {
			case *ast.Image:
				return Block{
					Type:    document.TypeImage,
					Content: document.TextContent(string(c.Destination)),
					Props:   document.Props{"alt": plainText(c, source)},
				}, true, nil
			case *ast.Link:
				if b, ok := button(plainText(c, source), string(c.Destination)); ok {
					return b, true, nil
				}
			case *ast.AutoLink:
				if b, ok := button(string(c.Label(source)), string(c.URL(source))); ok {
					return b, true, nil
				}
			}
		}
		if hasFormatting(n) {
			var buf bytes.Buffer
			if err := md.Renderer().Render(&buf, source, n); err != nil {
				return Block{}, false, fmt.Errorf("failed to render paragraph: %w", err)
			}
			return Block{Type: document.TypeRichText, Content: document.TextContent(strings.TrimSpace(buf.String()))}, true, nil
		}
		return Block{Type: document.TypeText, Content: document.TextContent(plainText(n, source))}, true, nil
	}
	return Block{}, false, nil
}

// button builds a button block for a link whose URL is safe to attach.
func button(label, href string) (Block, bool) {
	if security.ValidateLinkURL(href) != nil {
		return Block{}, false
	}
	if label == "" {
		label = href
	}
	return Block{Type: document.TypeButton, Content: document.TextContent(label), Props: document.Props{"href": href}}, true
}

// soleChild returns the paragraph's only inline node, ignoring surrounding
// whitespace text.
func soleChild(n ast.Node) ast.Node {
	var only ast.Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok && t.Segment.Len() == 0 {
			continue
		}
		if only != nil {
			return nil
		}
		only = c
	}
	return only
}

// hasFormatting reports whether inline markup would be lost as plain text.
func hasFormatting(n ast.Node) bool {
	found := false
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c == n {
			return ast.WalkContinue, nil
		}
		switch c.Kind() {
		case ast.KindEmphasis, ast.KindLink, ast.KindCodeSpan, ast.KindAutoLink, ast.KindImage, ast.KindRawHTML, extast.KindStrikethrough:
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// plainText concatenates the text below n. Line breaks become spaces.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.CodeSpan:
			for s := t.FirstChild(); s != nil; s = s.NextSibling() {
				if tx, ok := s.(*ast.Text); ok {
					b.Write(tx.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(t.Label(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// extractFrontmatter splits an optional "---" YAML header from content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}
	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unclosed frontmatter")
	}
	var fm Frontmatter
	if err := yaml.Unmarshal(content[4:4+endIdx], &fm); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &fm, content[4+endIdx+5:], nil
}
