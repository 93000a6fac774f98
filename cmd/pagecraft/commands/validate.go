package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/livetemplate/pagecraft/internal/app"
)

func newValidateCommand(g *globals) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "validate [section]",
		Short: "Check elements for required props and content",
		Long: `Check every element of a section, or of the whole document, and
exit non-zero when any element is invalid. Warnings are reported but do
not fail validation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()
			warn := color.New(color.FgYellow).SprintFunc()

			return g.run(cmd, false, func(ctx context.Context, s app.Session) error {
				sections := s.Store.SectionOrder()
				if len(args) == 1 {
					sections = args[:1]
				}
				out := cmd.OutOrStdout()
				invalid := 0
				for _, id := range sections {
					// The error combines the invalid elements, which are
					// reported from the results below.
					results, err := s.Engine.ValidateAllElements(ctx, id)
					if err != nil && results == nil {
						return err
					}
					for _, r := range results {
						if r.IsValid {
							if !quiet {
								fmt.Fprintf(out, "%s %s/%s\n", ok("✓"), id, r.ElementKey)
							}
						} else {
							invalid++
							fmt.Fprintf(out, "%s %s/%s\n", bad("✗"), id, r.ElementKey)
						}
						for _, issue := range r.Errors {
							fmt.Fprintf(out, "    %s %s\n", bad(issue.Code), issue.Message)
						}
						for _, issue := range r.Warnings {
							fmt.Fprintf(out, "    %s %s\n", warn(issue.Code), issue.Message)
						}
					}
				}
				if invalid > 0 {
					return fmt.Errorf("%d invalid element(s)", invalid)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report invalid elements")
	return cmd
}
