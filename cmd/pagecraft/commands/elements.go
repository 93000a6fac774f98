package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/pagecraft/internal/app"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
)

func newAddCommand(g *globals) *cobra.Command {
	var (
		key      string
		content  string
		items    []string
		props    []string
		position int
		after    string
		before   string
	)
	cmd := &cobra.Command{
		Use:   "add <section> <type>",
		Short: "Add an element to a section",
		Long: `Add an element to a section and print its key.

The type is an element type (headline, subheadline, text, richtext, list,
button, image, video, form, icon) or a schema slot name such as "cta" or
"hero_image", which is classified into a type.

Examples:
  pagecraft add hero headline --content "Ship faster"
  pagecraft add hero list --item One --item Two
  pagecraft add cta button --prop href=/signup --prop variant=secondary
  pagecraft add hero text --after title`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := elements.AddOptions{Key: key}
			switch {
			case cmd.Flags().Changed("item"):
				c := document.ListContent(items...)
				opts.Content = &c
			case cmd.Flags().Changed("content"):
				c := document.TextContent(content)
				opts.Content = &c
			}
			if len(props) > 0 {
				p, err := parsePairs(props)
				if err != nil {
					return err
				}
				opts.Props = p
			}
			switch {
			case after != "":
				opts.InsertMode, opts.ReferenceKey = elements.InsertAfter, after
			case before != "":
				opts.InsertMode, opts.ReferenceKey = elements.InsertBefore, before
			case cmd.Flags().Changed("position"):
				opts.Position = &position
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				newKey, err := s.Engine.AddElement(ctx, args[0], args[1], opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), newKey)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&key, "key", "", "element key (default: generated from the type)")
	f.StringVar(&content, "content", "", "text content")
	f.StringArrayVar(&items, "item", nil, "list item (repeatable)")
	f.StringArrayVar(&props, "prop", nil, "property as key=value (repeatable)")
	f.IntVar(&position, "position", 0, "insert at this position")
	f.StringVar(&after, "after", "", "insert after this element")
	f.StringVar(&before, "before", "", "insert before this element")
	cmd.MarkFlagsMutuallyExclusive("position", "after", "before")
	cmd.MarkFlagsMutuallyExclusive("content", "item")
	return cmd
}

func newRemoveCommand(g *globals) *cobra.Command {
	var (
		backup bool
		keep   bool
	)
	cmd := &cobra.Command{
		Use:     "rm <section> <key>...",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove elements from a section",
		Long: `Remove one or more elements. Removing several keys is a batch delete,
which asks once and leaves later positions untouched; run with
"move --compact" afterwards to close the gaps.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sectionID, keys := args[0], args[1:]
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				var err error
				if len(keys) == 1 {
					_, err = s.Engine.RemoveElement(ctx, sectionID, keys[0], elements.RemoveOptions{
						SkipConfirm:   g.yes,
						SaveBackup:    backup,
						KeepPositions: keep,
					})
				} else {
					var n int
					n, err = s.Engine.BatchDeleteElements(ctx, sectionID, keys)
					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "Removed %d element(s).\n", n)
						return nil
					}
				}
				if errors.Is(err, elements.ErrAborted) {
					fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", keys[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&backup, "backup", false, "save a restorable backup of the element")
	cmd.Flags().BoolVar(&keep, "keep-positions", false, "leave a gap instead of shifting later elements")
	return cmd
}

func newListCommand(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "ls <section>",
		Aliases: []string{"list"},
		Short:   "List the elements of a section in position order",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
				sec, ok := s.Store.Section(args[0])
				if !ok {
					return fmt.Errorf("section %q not found", args[0])
				}
				return writeElements(cmd.OutOrStdout(), format, sec.Ordered(), false)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table, json or csv")
	return cmd
}

func newMoveCommand(g *globals) *cobra.Command {
	var (
		to      int
		up      bool
		down    bool
		section string
		compact bool
	)
	cmd := &cobra.Command{
		Use:   "move <section> [key]",
		Short: "Move an element within or across sections",
		Long: `Move an element.

Examples:
  pagecraft move hero title --up
  pagecraft move hero title --to 0
  pagecraft move hero title --section cta --to 1
  pagecraft move hero --compact`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sectionID := args[0]
			if compact {
				return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
					n, err := s.Engine.CompactPositions(ctx, sectionID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Renumbered %d element(s).\n", n)
					return nil
				})
			}
			if len(args) < 2 {
				return errors.New("an element key is required")
			}
			key := args[1]
			var pos *int
			if cmd.Flags().Changed("to") {
				pos = &to
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				var (
					moved bool
					err   error
				)
				switch {
				case section != "":
					moved, err = s.Engine.MoveElementToSection(ctx, sectionID, section, key, pos)
				case up:
					moved, err = s.Engine.MoveElementUp(ctx, sectionID, key)
				case down:
					moved, err = s.Engine.MoveElementDown(ctx, sectionID, key)
				case pos != nil:
					moved, err = s.Engine.MoveElementToPosition(ctx, sectionID, key, *pos)
				default:
					return errors.New("one of --up, --down, --to or --section is required")
				}
				if err != nil {
					return err
				}
				if !moved {
					fmt.Fprintf(cmd.OutOrStdout(), "%s did not move.\n", key)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&to, "to", 0, "target position")
	f.BoolVar(&up, "up", false, "swap with the previous element")
	f.BoolVar(&down, "down", false, "swap with the next element")
	f.StringVar(&section, "section", "", "move into this section (appends unless --to is set)")
	f.BoolVar(&compact, "compact", false, "renumber positions to close gaps")
	cmd.MarkFlagsMutuallyExclusive("up", "down", "to")
	cmd.MarkFlagsMutuallyExclusive("up", "down", "section")
	return cmd
}

func newConvertCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <section> <key> <type>",
		Short: "Change an element's type, or reset its props when the type is unchanged",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := document.ParseElementType(args[2])
			if !ok {
				return fmt.Errorf("unknown element type %q", args[2])
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				if _, err := s.Engine.ConvertElementType(ctx, args[0], args[1], t); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Store.LastAnnouncement())
				return nil
			})
		},
	}
}

func newSetCommand(g *globals) *cobra.Command {
	var (
		content string
		items   []string
		props   []string
	)
	cmd := &cobra.Command{
		Use:   "set <section> <key>",
		Short: "Update an element's content or props",
		Long: `Update an element's content or props. A prop set to null is removed.

Examples:
  pagecraft set hero title --content "Ship fastest"
  pagecraft set cta go --prop href=/pricing --prop target=null`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c *document.Content
			switch {
			case cmd.Flags().Changed("item"):
				v := document.ListContent(items...)
				c = &v
			case cmd.Flags().Changed("content"):
				v := document.TextContent(content)
				c = &v
			}
			p, err := parsePairs(props)
			if err != nil {
				return err
			}
			if c == nil && len(p) == 0 {
				return errors.New("nothing to set: use --content, --item or --prop")
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				if c != nil {
					if err := s.Engine.UpdateElementContent(ctx, args[0], args[1], *c); err != nil {
						return err
					}
				}
				if len(p) > 0 {
					return s.Engine.SetElementProps(ctx, args[0], args[1], p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "text content")
	cmd.Flags().StringArrayVar(&items, "item", nil, "list item (repeatable)")
	cmd.Flags().StringArrayVar(&props, "prop", nil, "property as key=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("content", "item")
	return cmd
}

func newSearchCommand(g *globals) *cobra.Command {
	var (
		c        elements.SearchCriteria
		typeName string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find elements across sections",
		Long: `Find elements matching every given filter.

Examples:
  pagecraft search --type button
  pagecraft search --q "free trial"
  pagecraft search --key 'hero_*'
  pagecraft search --where 'type == "button" && props.variant == "primary"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeName != "" {
				t, ok := document.ParseElementType(typeName)
				if !ok {
					return fmt.Errorf("unknown element type %q", typeName)
				}
				c.Type = t
			}
			return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
				found, err := s.Engine.SearchElements(ctx, c)
				if err != nil {
					return err
				}
				return writeElements(cmd.OutOrStdout(), format, found, true)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.SectionID, "section", "", "only this section")
	f.StringVar(&typeName, "type", "", "element type")
	f.StringVar(&c.ContentContains, "q", "", "content contains (case-insensitive)")
	f.StringVar(&c.KeyPattern, "key", "", "glob over element keys")
	f.StringVar(&c.Where, "where", "", "expression over type, key, content and props")
	f.StringVarP(&format, "format", "o", "table", "output format: table, json or csv")
	return cmd
}
