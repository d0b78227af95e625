// Package app assembles the local store, remote store, alarm engine,
// reconcilers and repositories into one running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notifier"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/repository"
	"github.com/sandeepkv93/remindd/internal/scheduler"
	"github.com/sandeepkv93/remindd/internal/selector"
	"github.com/sandeepkv93/remindd/internal/storage"
)

type App struct {
	Reminders *repository.ReminderRepository
	Groups    *repository.GroupRepository
	Tags      *repository.TagRepository

	cfg        *config.Config
	log        *zap.Logger
	store      *storage.SQLiteStore
	remote     remote.Store
	engine     *scheduler.Engine
	rearmer    *scheduler.Rearmer
	supervisor *reconcile.Supervisor
	notifier   notifier.Notifier
	identity   repository.Identity
	closers    []io.Closer
}

type options struct {
	remote   remote.Store
	notifier notifier.Notifier
	extra    []notifier.Notifier
	now      func() time.Time
}

type Option func(*options)

// WithRemote replaces the configured remote store.
func WithRemote(s remote.Store) Option {
	return func(o *options) { o.remote = s }
}

// WithNotifier replaces the configured notifiers.
func WithNotifier(n notifier.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// AlsoNotify delivers alarms to n in addition to the other notifiers.
func AlsoNotify(n notifier.Notifier) Option {
	return func(o *options) { o.extra = append(o.extra, n) }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New opens the local database and remote store and starts the alarm
// engine. Call Run to follow the remote store and deliver alarms, and
// Close when done.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logging.OrNop(log)
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create data dir: %w", err)
		}
	}
	store, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open local store: %w", err)
	}
	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		identity: repository.StaticIdentity(cfg.OwnerID),
		closers:  []io.Closer{store},
	}

	a.remote = o.remote
	if a.remote == nil {
		if a.remote, err = a.openRemote(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.notifier = o.notifier
	if a.notifier == nil {
		a.notifier = a.buildNotifier()
	}
	if len(o.extra) > 0 {
		a.notifier = append(notifier.Multi{a.notifier}, o.extra...)
	}

	sel := selector.New(cfg.Scheduler.HorizonDays, loc)
	a.engine = scheduler.NewEngine(cfg.Scheduler.Buffer)
	a.rearmer = scheduler.NewRearmer(a.engine, a.pending, sel,
		scheduler.WithClock(o.now),
		scheduler.WithLogger(log.Named("rearm")),
	)

	syncLog := log.Named("sync")
	reminderSync := reconcile.New(reconcile.Config[model.Reminder]{
		Collection: remote.CollectionReminders,
		Local:      store.Reminders(),
		Remote:     a.remote,
		Hooks:      repository.SnapshotHooks(a.rearmer),
		Logger:     syncLog,
		RetryDelay: cfg.RetryDelay(),
	})
	groupSync := reconcile.New(reconcile.Config[model.Group]{
		Collection: remote.CollectionGroups,
		Local:      store.Groups(),
		Remote:     a.remote,
		Logger:     syncLog,
		RetryDelay: cfg.RetryDelay(),
	})
	tagSync := reconcile.New(reconcile.Config[model.Tag]{
		Collection: remote.CollectionTags,
		Local:      store.Tags(),
		Remote:     a.remote,
		Logger:     syncLog,
		RetryDelay: cfg.RetryDelay(),
	})
	a.supervisor = reconcile.NewSupervisor(syncLog, reminderSync, groupSync, tagSync)

	repoOpts := []repository.Option{
		repository.WithClock(o.now),
		repository.WithLocation(loc),
		repository.WithLogger(log.Named("repository")),
		repository.WithSelector(sel),
	}
	a.Reminders = repository.NewReminderRepository(store.Reminders(), reminderSync, a.rearmer, a.identity, repoOpts...)
	a.Groups = repository.NewGroupRepository(store.Groups(), groupSync, a.identity, repoOpts...)
	a.Tags = repository.NewTagRepository(store.Tags(), tagSync, a.identity, repoOpts...)

	a.engine.Start()
	a.rearmer.Start()
	return a, nil
}

func (a *App) openRemote() (remote.Store, error) {
	switch a.cfg.Remote.Driver {
	case config.DriverPostgres:
		pg, err := remote.OpenPostgres(a.cfg.Remote.DSN, remote.PostgresOptions{
			PollInterval: a.cfg.PollInterval(),
			Logger:       a.log.Named("postgres"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg)
		return pg, nil
	default:
		return remote.NewMemory(), nil
	}
}

func (a *App) buildNotifier() notifier.Notifier {
	targets := notifier.Multi{notifier.NewLog(a.log.Named("notify"))}
	if a.cfg.Notify.Desktop {
		targets = append(targets, notifier.NewDesktop())
	}
	sg := a.cfg.Notify.SendGrid
	if sg.APIKey != "" {
		email, err := notifier.NewSendGrid(notifier.SendGridConfig{
			APIKey:    sg.APIKey,
			FromEmail: sg.FromEmail,
			FromName:  sg.FromName,
			ToEmail:   sg.ToEmail,
			ToName:    sg.ToName,
		})
		if err != nil {
			a.log.Warn("email notifications disabled", zap.Error(err))
		} else {
			targets = append(targets, email)
		}
	}
	return targets
}

func (a *App) pending(ctx context.Context) ([]model.Reminder, error) {
	owner := a.identity.OwnerID()
	if owner == "" {
		return nil, nil
	}
	return a.store.Reminders().Pending(ctx, owner)
}

// Run follows the remote store, delivers fired alarms and sweeps for
// missed reminders until ctx is done.
func (a *App) Run(ctx context.Context) error {
	owner := a.identity.OwnerID()
	if owner == "" {
		return repository.ErrSignedOut
	}

	states := make(chan string, 1)
	states <- owner

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.supervisor.Follow(gctx, states)
		return nil
	})
	g.Go(func() error {
		NewDispatcher(a.engine.C(), a.notifier, a.Reminders, a.log.Named("dispatch")).Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.sweepLoop(gctx)
		return nil
	})

	a.log.Info("remindd running",
		zap.String("owner_id", owner),
		zap.String("remote", a.cfg.Remote.Driver),
		zap.Duration("sweep_interval", a.cfg.SweepInterval()),
	)
	return g.Wait()
}

func (a *App) sweepLoop(ctx context.Context) {
	a.Reminders.SweepMissed(ctx)
	ticker := time.NewTicker(a.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Reminders.SweepMissed(ctx)
		}
	}
}

// Armed is the alarm currently held by the engine.
func (a *App) Armed() (model.Candidate, bool) {
	return a.engine.Armed()
}

// Close stops the engine and releases the stores.
func (a *App) Close() error {
	if a.rearmer != nil {
		a.rearmer.Stop()
	}
	if a.engine != nil {
		a.engine.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
