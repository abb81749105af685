package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/fitset/internal/server"
	"github.com/ironsheep/fitset/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline as MCP tools over stdio",
		Long: `Run an MCP (Model Context Protocol) server on stdin/stdout. Configure it in
an MCP client as a stdio command. Logs go to stderr. When evaluate.db is set,
detector_evaluate stores its runs there.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := []server.Option{
				server.WithLogger(logger),
				server.WithVersion(Version),
			}

			if cfg.Evaluate.DB != "" {
				st, err := store.Open(ctx, cfg.Evaluate.DB, logger)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, server.WithStore(st))
			}

			logger.Info("starting MCP server", "version", Version, "commit", GitCommit)
			return server.New(cfg, opts...).Run(ctx)
		},
	}
}
