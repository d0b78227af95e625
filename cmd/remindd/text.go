package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/remindd/internal/app"
	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/views"
)

type textVerb struct {
	name    string
	aliases []string
	usage   string
	short   string
}

var textVerbs = []textVerb{
	{name: "add", usage: "add <title> [@ when] [every:rule] [before:dur] [deadline:when] [priority:p] [group:g] [tag:t]", short: "Create a reminder"},
	{name: "snooze", usage: "snooze <target> <duration>", short: "Snooze a reminder"},
	{name: "complete", aliases: []string{"done"}, usage: "complete <target>", short: "Complete a reminder"},
	{name: "dismiss", usage: "dismiss <target>", short: "Dismiss a reminder"},
	{name: "reschedule", usage: "reschedule <target> <when>", short: "Move a reminder to a new due time"},
	{name: "show", aliases: []string{"ls", "list"}, usage: "show [active|all|snoozed|completed|dismissed|missed|next] [tag:t] [group:g]", short: "List reminders"},
	{name: "sync", usage: "sync", short: "Push every local reminder to the remote store"},
}

func newVerbCommand(opts *rootOptions, verb textVerb) *cobra.Command {
	return &cobra.Command{
		Use:     verb.usage,
		Aliases: verb.aliases,
		Short:   verb.short,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.TrimSpace(verb.name + " " + strings.Join(args, " "))
			return runOnce(cmd, opts, line)
		},
	}
}

func newDoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "do <command line>",
		Short: "Run one text command, as typed in the watch palette",
		Long: `Run one text command.

Example:
  remindd do add Pay rent @ tomorrow 9am every:monthly before:1h
  remindd do snooze next 30m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts, strings.Join(args, " "))
		},
	}
}

func runOnce(cmd *cobra.Command, opts *rootOptions, line string) error {
	a, err := opts.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := runLine(cmd.Context(), a, opts, line)
	if err != nil {
		return err
	}
	loc, _ := opts.cfg.Location()
	printResult(cmd.OutOrStdout(), res, time.Now(), loc)
	return nil
}

func bindEnv(ctx context.Context, a *app.App, opts *rootOptions) commands.Handlers {
	loc, _ := opts.cfg.Location()
	return commands.Bind(ctx, commands.Env{
		Reminders: a.Reminders,
		Groups:    a.Groups,
		Tags:      a.Tags,
		Location:  loc,
	})
}

func runLine(ctx context.Context, a *app.App, opts *rootOptions, line string) (commands.Result, error) {
	parsed, err := commands.Parse(line)
	if err != nil {
		return commands.Result{}, err
	}
	return commands.Execute(parsed, bindEnv(ctx, a, opts))
}

func printResult(w io.Writer, res commands.Result, now time.Time, loc *time.Location) {
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	if res.Reminders != nil {
		fmt.Fprintln(w, views.RenderReminderList(views.ReminderListData{Items: res.Reminders, Now: now, Location: loc}))
	}
	if res.Next != nil {
		fmt.Fprintln(w, views.RenderNext(res.Next, now, loc))
	}
}
