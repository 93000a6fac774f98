package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/app"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/server"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		host     string
		port     int
		api      bool
		watch    bool
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor API and action websocket",
		Long: `Serve the document over HTTP. The websocket at /ws accepts toolbar
actions and streams changes; the REST API under /api is served when
enabled. The document is written back to --doc on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if readOnly {
				config.SetReadOnly(true)
			}
			opts, err := g.options(cmd)
			if err != nil {
				return err
			}
			// The server confirms nothing interactively.
			opts.Confirmer = nil
			c, err := app.New(opts)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
				defer cancel()
				if cerr := app.Close(ctx, c); cerr != nil && err == nil {
					err = cerr
				}
			}()

			err = app.Invoke(c, func(cfg *config.Config) {
				if cmd.Flags().Changed("host") {
					cfg.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
				if api {
					if cfg.API == nil {
						cfg.API = &config.APIConfig{}
					}
					cfg.API.Enabled = true
				}
				if watch {
					cfg.Schemas.Watch = true
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Invoke(c, func(srv *server.Server, s app.Session) error {
				if err := srv.EnableSchemaWatch(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", g.docPath, s.Config.Server.Addr())
				if err := srv.Run(ctx); err != nil {
					return err
				}
				if config.IsReadOnly() {
					return nil
				}
				if err := app.WriteDocument(s.Store, g.docPath); err != nil {
					return fmt.Errorf("failed to write document: %w", err)
				}
				s.Logger.Info("document written", zap.String("path", g.docPath))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "", "listen host (default from config)")
	f.IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	f.BoolVar(&api, "api", false, "serve the REST API")
	f.BoolVarP(&watch, "watch", "w", false, "reload the schema file when it changes")
	f.BoolVar(&readOnly, "read-only", false, "reject every mutation")
	return cmd
}
