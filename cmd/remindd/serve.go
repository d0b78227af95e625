package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/httpapi"
	"github.com/sandeepkv93/remindd/internal/mcpserver"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm loop, remote sync and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = opts.cfg.HTTP.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			srv := httpapi.NewServer(a.Reminders, a.Groups, a.Tags, opts.cfg.HTTP.CORSOrigins, opts.log.Named("http"))
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Run(gctx) })
			g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
			err = g.Wait()
			opts.log.Info("remindd stopped", zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve reminder tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			srv := mcpserver.NewServer(a.Reminders)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Run(gctx) })
			g.Go(func() error {
				defer cancel()
				return srv.ServeStdio()
			})
			return g.Wait()
		},
	}
}
