package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/catalogmatch/internal/api"
	"github.com/Aman-CERP/catalogmatch/internal/app"
	"github.com/Aman-CERP/catalogmatch/internal/logging"
	"github.com/Aman-CERP/catalogmatch/internal/mcpserver"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		transport     string
		addr          string
		retrievalOnly bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve matching over MCP (stdio) or HTTP",
		Long: `Serve exposes the match_products and search_catalog operations.

With --transport stdio (default) catalogmatch speaks the Model Context
Protocol on stdin/stdout; logs go to ~/.catalogmatch/logs/ only.
With --transport http it serves a JSON API on --addr:

  GET  /healthz
  POST /v1/match   {"text": "..."}
  POST /v1/search  {"query": "...", "limit": 10}

Set server.api_key or CATALOGMATCH_API_KEY to require a bearer token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("transport") {
				transport = cfg.Server.Transport
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if transport != "stdio" && transport != "http" {
				return fmt.Errorf("invalid transport %q: must be stdio or http", transport)
			}

			// Stdout is the protocol stream under stdio.
			if transport == "stdio" && !g.debug {
				logger, cleanup, err := logging.Setup(logging.StdioConfig(cfg.Server.LogLevel))
				if err != nil {
					return fmt.Errorf("failed to setup logging: %w", err)
				}
				defer cleanup()
				slog.SetDefault(logger)
			}

			var opts []app.Option
			if retrievalOnly {
				opts = append(opts, app.RetrievalOnly())
			}
			a, err := app.Open(ctx, cfg, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var m mcpserver.Matcher
			if a.Orchestrator != nil {
				m = a.Orchestrator
			}

			if transport == "http" {
				router := api.NewRouter(a.Engine, m, api.Config{
					APIKey: cfg.Server.APIKey,
					Logger: slog.Default().With("component", "api"),
				})
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "catalogmatch listening on %s\n", addr)
				return api.Serve(ctx, addr, router)
			}

			srv, err := mcpserver.NewServer(a.Engine, m)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "Transport: stdio (MCP) or http")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&retrievalOnly, "retrieval-only", false, "Serve search only; no language model required")

	return cmd
}
