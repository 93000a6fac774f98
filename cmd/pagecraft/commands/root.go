// Package commands implements the pagecraft command tree.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/app"
	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/logging"
)

// defaultTimeout bounds one CLI operation.
const defaultTimeout = 30 * time.Second

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	docPath    string
	operator   string
	yes        bool
	verbose    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "pagecraft",
		Short: "Edit landing-page documents from the command line or over HTTP",
		Long: `pagecraft edits a landing-page document: sections holding ordered,
typed elements such as headlines, buttons, images and forms.

Every command loads the document named by --doc, applies one operation
and writes the document back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.SetOperator(g.operator)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "pagecraft.yaml", "configuration file")
	flags.StringVarP(&g.docPath, "doc", "d", "page.json", "document file (.json, .yaml or .yml)")
	flags.StringVar(&g.operator, "operator", "", "name recorded as the source of changes (default $USER)")
	flags.BoolVarP(&g.yes, "yes", "y", false, "skip confirmation prompts")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log at the configured level instead of errors only")

	root.AddCommand(
		newSectionCommand(g),
		newAddCommand(g),
		newRemoveCommand(g),
		newListCommand(g),
		newMoveCommand(g),
		newConvertCommand(g),
		newSetCommand(g),
		newSearchCommand(g),
		newValidateCommand(g),
		newImportCommand(g),
		newTemplateCommand(g),
		newActionCommand(g),
		newServeCommand(g),
		newVersionCommand(version),
	)
	return root
}

// options builds the container options for cmd.
func (g *globals) options(cmd *cobra.Command) (app.Options, error) {
	opts := app.Options{ConfigPath: g.configPath, DocPath: g.docPath}
	if !g.verbose {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return opts, err
		}
		logger, err := logging.New(config.LogConfig{Level: "error", Encoding: cfg.Log.Encoding})
		if err != nil {
			return opts, err
		}
		opts.Logger = logger
	}
	if !g.yes {
		opts.Confirmer = promptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	return opts, nil
}

// run builds the components, calls fn, writes the document back when write
// is set, and releases everything.
func (g *globals) run(cmd *cobra.Command, write bool, fn func(ctx context.Context, s app.Session) error) (err error) {
	opts, err := g.options(cmd)
	if err != nil {
		return err
	}
	c, err := app.New(opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
	defer cancel()
	defer func() {
		if cerr := app.Close(ctx, c); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return app.Invoke(c, func(s app.Session) error {
		if err := fn(ctx, s); err != nil {
			return err
		}
		if !write {
			return nil
		}
		if err := app.WriteDocument(s.Store, g.docPath); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		s.Logger.Debug("document written", zap.String("path", g.docPath))
		return nil
	})
}

// promptConfirmer asks on out and reads the answer from in. Anything but
// y or yes declines, including end of input.
func promptConfirmer(in io.Reader, out io.Writer) capability.Confirmer {
	reader := bufio.NewReader(in)
	return capability.ConfirmFunc(func(ctx context.Context, message string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N] ", message)
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			fmt.Fprintln(out)
			return false, nil
		}
		response = strings.TrimSpace(strings.ToLower(response))
		return response == "y" || response == "yes", nil
	})
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pagecraft version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagecraft version %s\n", version)
		},
	}
}
