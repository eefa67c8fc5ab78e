// Package app wires the engine together from a Config. The binaries choose
// the SQLite driver and the transport; everything else is built here.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/config"
	"github.com/vthunder/agenda/internal/diag"
	"github.com/vthunder/agenda/internal/extract"
	"github.com/vthunder/agenda/internal/integrations/caldav"
	"github.com/vthunder/agenda/internal/integrations/calendar"
	"github.com/vthunder/agenda/internal/intent"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/profiling"
	"github.com/vthunder/agenda/internal/qa"
	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/scheduler"
	"github.com/vthunder/agenda/internal/store"
)

// App is a wired engine
type App struct {
	Config    config.Config
	Store     *store.Store
	Syncer    *calsync.Syncer
	Scheduler *scheduler.Scheduler
	Bot       *bot.Bot
	Diag      *diag.Reporter
	Profiler  *profiling.Profiler
}

// Build opens the store and creates every component without starting the
// background loops. storeOpts are appended after the location option.
func Build(ctx context.Context, cfg config.Config, storeOpts ...store.Option) (*App, error) {
	logging.SetDebug(cfg.Debug)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.OpenDir(cfg.StatePath, append([]store.Option{store.WithLocation(loc)}, storeOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	prof, err := profiling.New(profiling.ParseLevel(cfg.Profile), filepath.Join(cfg.StatePath, "profile.jsonl"))
	if err != nil {
		st.Close()
		return nil, err
	}

	classifier := intent.New(extract.New(extract.NewProseTagger()))
	if err := classifier.LoadFile(cfg.RulesFile); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	adapter, err := NewAdapter(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	syncer := calsync.New(adapter, st, calsync.Config{
		Timeout:     cfg.SyncTimeout,
		Interval:    cfg.SyncInterval,
		ImportOwner: cfg.Discord.OwnerID,
		PullWindow:  cfg.EventWindow,
		Profiler:    prof,
	})

	sched := scheduler.New(st, scheduler.Config{Interval: cfg.ScanInterval, Profiler: prof})

	rep, err := diag.New()
	if err != nil {
		st.Close()
		return nil, err
	}
	rep.AddLine(func(ctx context.Context) string {
		return "⏰ **Scheduler:** last scan " + diag.Since(sched.LastScan())
	})
	rep.AddLine(func(ctx context.Context) string {
		at, err := syncer.LastRun()
		line := "🔄 **Sync:** last pass " + diag.Since(at)
		if err != nil {
			line += fmt.Sprintf(" (failed: %v)", err)
		}
		return line
	})
	rep.AddLine(func(ctx context.Context) string { return prof.Report() })

	b := bot.New(st, bot.Config{
		Classifier:    classifier,
		Resolver:      resolve.New(cfg.Resolver.Threshold, cfg.Resolver.Margin),
		QA:            qa.New(st, cfg.QATopN),
		Syncer:        syncer,
		Diagnostics:   rep.Report,
		Location:      loc,
		EventWindow:   cfg.EventWindow,
		EventDuration: cfg.EventDuration,
	})

	return &App{
		Config:    cfg,
		Store:     st,
		Syncer:    syncer,
		Scheduler: sched,
		Bot:       b,
		Diag:      rep,
		Profiler:  prof,
	}, nil
}

// NewAdapter connects to the configured calendar backend
func NewAdapter(ctx context.Context, cfg config.Config) (calsync.Adapter, error) {
	switch cfg.Calendar.Backend {
	case config.BackendGoogle:
		c, err := calendar.NewClient(ctx, calendar.Config{
			CredentialsFile: cfg.Calendar.CredentialsFile,
			TokenFile:       cfg.Calendar.TokenFile,
			CalendarID:      cfg.Calendar.CalendarID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect Google Calendar: %w", err)
		}
		log.Printf("[app] Using Google Calendar %s", c.CalendarID())
		return c, nil
	case config.BackendCalDAV:
		loc, _ := cfg.Location()
		c, err := caldav.NewClient(ctx, caldav.Config{
			URL:          cfg.Calendar.URL,
			Username:     cfg.Calendar.Username,
			Password:     cfg.Calendar.Password,
			CalendarName: cfg.Calendar.CalendarName,
			Location:     loc,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect CalDAV: %w", err)
		}
		log.Printf("[app] Using CalDAV calendar %q", cfg.Calendar.CalendarName)
		return c, nil
	default:
		log.Printf("[app] No calendar backend; events stay local")
		return calsync.NewMemory(), nil
	}
}

// Start runs the scheduler and sync loops
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	return a.Syncer.Start()
}

// Close stops the loops and releases the store
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Syncer.Stop()
	a.Profiler.Close()
	return a.Store.Close()
}
