package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/livetemplate/pagecraft/internal/app"
)

func newSectionCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Manage the sections of a document",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <id> <layout>",
			Short: "Add an empty section with a layout",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
					return s.Store.AddSection(args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List sections in document order",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
					var rows [][]string
					for _, id := range s.Store.SectionOrder() {
						sec, ok := s.Store.Section(id)
						if !ok {
							continue
						}
						custom := ""
						if sec.Customized {
							custom = "yes"
						}
						rows = append(rows, []string{id, sec.Layout, strconv.Itoa(len(sec.Elements)), custom})
					}
					writeTable(cmd.OutOrStdout(), []string{"id", "layout", "elements", "customized"}, rows)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"remove"},
			Short:   "Remove a section and its elements",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, true, func(ctx context.Context, s app.Session) error {
					unlock := s.Engine.LockSections(args[0])
					defer unlock()
					if err := s.Store.RemoveSection(args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed section %s.\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}
