package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/app"
	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/logging"
)

// rootOptions holds global flags and what PersistentPreRunE loads from them.
type rootOptions struct {
	ConfigPath string
	Owner      string
	LogLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "remindd",
		Short:         "Offline-first reminders with alarms and sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Name() == "watch")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath(), "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "", "owner id (overrides owner_id)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMCPCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newDoCommand(opts))
	for _, verb := range textVerbs {
		cmd.AddCommand(newVerbCommand(opts, verb))
	}
	return cmd
}

func (o *rootOptions) load(toFile bool) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.Owner != "" {
		cfg.OwnerID = o.Owner
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var log *zap.Logger
	if toFile {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		log, err = logging.NewFile(cfg.Log.Level, cfg.Database.Path+".log")
	} else {
		log, err = logging.New(cfg.Log.Level, cfg.Log.Development)
	}
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.log = log
	return nil
}

func (o *rootOptions) openApp(extra ...app.Option) (*app.App, error) {
	a, err := app.New(o.cfg, o.log, extra...)
	if err != nil {
		return nil, fmt.Errorf("start remindd: %w", err)
	}
	return a, nil
}
