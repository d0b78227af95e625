package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/app"
	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/update"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow reminders and alarms in a terminal screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := update.NewFeed(16)
			a, err := opts.openApp(app.AlsoNotify(feed))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			updates, err := a.Reminders.ObserveAll(ctx)
			if err != nil {
				return err
			}
			loc, _ := opts.cfg.Location()
			handlers := bindEnv(ctx, a, opts)
			g, gctx := errgroup.WithContext(ctx)

			program := tea.NewProgram(update.NewModel(update.Deps{
				Updates: updates,
				Fired:   feed.C(),
				Run: func(line string) (commands.Result, error) {
					parsed, err := commands.Parse(line)
					if err != nil {
						return commands.Result{}, err
					}
					return commands.Execute(parsed, handlers)
				},
				Next: func() (*model.Candidate, error) {
					c, ok, err := a.Reminders.NextNotification(ctx)
					if err != nil || !ok {
						return nil, err
					}
					return &c, nil
				},
				Location: loc,
			}), tea.WithAltScreen(), tea.WithContext(gctx))

			g.Go(func() error { return a.Run(gctx) })
			g.Go(func() error {
				defer cancel()
				_, err := program.Run()
				return err
			})
			return g.Wait()
		},
	}
}
