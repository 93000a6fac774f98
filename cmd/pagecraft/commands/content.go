package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/livetemplate/pagecraft/internal/app"
	"github.com/livetemplate/pagecraft/internal/importer"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

func newImportCommand(g *globals) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file.md|-> [section]",
		Short: "Create elements from a markdown file",
		Long: `Create elements from markdown: headings become headlines, paragraphs
text, lists list elements, images image elements and links on their own
line buttons. Frontmatter may name the section and its layout:

  ---
  section: hero
  layout: leftCopyRightImage
  ---

A section argument overrides the frontmatter. Use "-" to read stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			sectionID := ""
			if len(args) == 2 {
				sectionID = args[1]
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				res, err := s.Importer.Import(ctx, sectionID, data, importer.Options{Replace: replace})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Created {
					fmt.Fprintf(out, "Created section %s.\n", res.SectionID)
				}
				if res.Removed > 0 {
					fmt.Fprintf(out, "Removed %d element(s).\n", res.Removed)
				}
				fmt.Fprintf(out, "Imported %d element(s) into %s: %s\n", len(res.Keys), res.SectionID, strings.Join(res.Keys, ", "))
				if len(res.Skipped) > 0 {
					fmt.Fprintf(out, "Skipped: %s\n", strings.Join(res.Skipped, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "remove the section's elements first")
	return cmd
}

func newTemplateCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Save elements as reusable templates",
	}

	var category string
	save := &cobra.Command{
		Use:   "save <section> <key> <name>",
		Short: "Save an element as a template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
				tpl, err := s.Engine.SaveElementAsTemplate(ctx, args[0], args[1], args[2], category)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tpl.ID)
				return nil
			})
		},
	}
	save.Flags().StringVar(&category, "category", "", "template category (default: the element type's category)")

	var position int
	load := &cobra.Command{
		Use:   "load <name|id> <section>",
		Short: "Add an element built from a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pos *int
			if cmd.Flags().Changed("position") {
				pos = &position
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				tpl, err := s.Engine.FindTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				key, err := s.Engine.LoadElementFromTemplate(ctx, args[1], tpl, pos)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
	load.Flags().IntVar(&position, "position", 0, "insert at this position (default append)")

	cmd.AddCommand(
		save,
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List saved templates",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
					list, err := s.Engine.ListTemplates(ctx)
					if err != nil {
						return err
					}
					rows := make([][]string, len(list))
					for i, t := range list {
						rows[i] = []string{t.Name, string(t.Type), t.Category, humanize.Time(t.CreatedAt), t.ID}
					}
					writeTable(cmd.OutOrStdout(), []string{"name", "type", "category", "created", "id"}, rows)
					return nil
				})
			},
		},
		load,
		&cobra.Command{
			Use:     "rm <name|id>",
			Aliases: []string{"remove"},
			Short:   "Delete a template",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
					return s.Engine.DeleteTemplate(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

func newActionCommand(g *globals) *cobra.Command {
	var (
		section string
		key     string
		params  []string
	)
	cmd := &cobra.Command{
		Use:   "action [id]",
		Short: "Run a toolbar action, or list the available ones",
		Long: `Run one toolbar action against a section or element.

Examples:
  pagecraft action
  pagecraft action duplicate-element --section hero --key title
  pagecraft action change-text-align --section hero --key title --param align=center
  pagecraft action move-section --section cta --param direction=up`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
					actions := s.Dispatcher.AvailableActions()
					sort.Slice(actions, func(i, j int) bool {
						if gi, gj := actions[i].Group(), actions[j].Group(); gi != gj {
							return gi < gj
						}
						return actions[i] < actions[j]
					})
					rows := make([][]string, len(actions))
					for i, a := range actions {
						rows[i] = []string{string(a.Group()), string(a)}
					}
					writeTable(cmd.OutOrStdout(), []string{"group", "action"}, rows)
					return nil
				})
			}

			p, err := parsePairs(params)
			if err != nil {
				return err
			}
			if section != "" {
				p["sectionId"] = section
			}
			if key != "" {
				p["elementKey"] = key
			}
			return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
				res := s.Dispatcher.Execute(ctx, args[0], toolbar.Params(p))
				if res.Err != nil {
					return res.Err
				}
				if !res.OK {
					fmt.Fprintf(cmd.OutOrStdout(), "%s made no change.\n", res.Action)
					return nil
				}
				if msg := s.Store.LastAnnouncement(); msg != "" {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "target section")
	cmd.Flags().StringVar(&key, "key", "", "target element")
	cmd.Flags().StringArrayVar(&params, "param", nil, "action parameter as key=value (repeatable)")
	return cmd
}
