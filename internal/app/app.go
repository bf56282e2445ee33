// Package app wires the daemon together: config, logging, storage, the
// game clock, the schedule manager, and the optional HTTP API.
package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gametimed/internal/clock"
	"gametimed/internal/config"
	"gametimed/internal/convert"
	"gametimed/internal/eventbus"
	"gametimed/internal/httpapi"
	"gametimed/internal/observability/pprof"
	"gametimed/internal/runtime/supervisor"
	"gametimed/internal/sched"
	"gametimed/internal/storage"
	"gametimed/internal/units"
	logx "gametimed/pkg/logx"
	"gametimed/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store storage.Store
	clk   *clock.SystemClock
	table *units.Table
	conv  *convert.Converter
	reg   *sched.Registry
	mgr   *sched.Manager
	api   *httpapi.Server
	prof  *pprof.Service

	cron            *cron.Cron
	checkpointEvery time.Duration

	// gameTime as loaded at startup. The section is immutable while the
	// process runs; hot reloads that change it are rejected.
	gameTime config.GameTimeConfig
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	table, err := cfg.GameTime.Table()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	conv := convert.New(table)

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      eventbus.New(),
		table:    table,
		conv:     conv,
		gameTime: cfg.GameTime,
	}

	fail := func(err error) (*App, error) {
		if a.store != nil {
			_ = a.store.Close()
		}
		logSvc.Close()
		return nil, err
	}

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return fail(err)
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fail(err)
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Game clock: resume from the last checkpoint when storage has one.
	var base int64
	if a.store != nil {
		st, ok, err := a.store.LoadClock(context.Background())
		if err != nil {
			return fail(fmt.Errorf("load clock checkpoint: %w", err))
		}
		if ok {
			base = st.GameSeconds
			log.Info("game clock restored",
				logx.Int64("game_seconds", base),
				logx.Time("saved_at", st.SavedAt))
		}
	}
	a.clk = clock.NewSystem(base, table.SpeedFactor())

	a.reg = sched.NewRegistry()
	if err := registerBuiltinHandlers(a.reg, log); err != nil {
		return fail(err)
	}

	a.mgr = sched.New(a.conv, a.clk, a.reg, sched.Options{
		Store: a.store,
		Log:   log.With(logx.String("comp", "sched")),
		Bus:   a.bus,
	})

	if cfg.HTTP != nil && cfg.HTTP.Enabled {
		addr := strings.TrimSpace(cfg.HTTP.Addr)
		if addr == "" {
			addr = "127.0.0.1:7474"
		}
		a.api = httpapi.New(addr, a.clk, a.table, a.conv, a.mgr,
			log.With(logx.String("comp", "http")))
	}

	if cfg.Pprof != nil && cfg.Pprof.Enabled {
		a.prof = pprof.New(pprof.Config{
			Enabled: true,
			Addr:    cfg.Pprof.Addr,
			Token:   cfg.Pprof.Token,
		}, log.With(logx.String("comp", "pprof")))
	}

	a.checkpointEvery, err = config.ParseDurationOrDefault(
		"checkpoint.interval", cfg.Checkpoint.Interval, 5*time.Minute)
	if err != nil {
		return fail(err)
	}

	if a.store != nil {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", a.checkpointEvery), a.checkpointClock); err != nil {
			return fail(fmt.Errorf("schedule clock checkpoint: %w", err))
		}
	}

	return a, nil
}

// Registry exposes the handler registry so hosts can add handlers before
// Start (Resume needs them in place to restore persisted entries).
func (a *App) Registry() *sched.Registry { return a.reg }

// Manager exposes the schedule manager for embedding hosts.
func (a *App) Manager() *sched.Manager { return a.mgr }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Transactional config reload: reject before commit/publish. The
	// game_time section cannot change while entries are armed against the
	// current unit table.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.GameTime.SpeedFactor != a.gameTime.SpeedFactor ||
			!reflect.DeepEqual(cfg.GameTime.Units, a.gameTime.Units) {
			return fmt.Errorf("game_time cannot change at runtime; restart to apply")
		}
		return nil
	})

	// Restore persisted entries with fresh delays from the live clock.
	if err := a.mgr.Resume(a.sup.Context()); err != nil {
		return err
	}

	if a.cron != nil {
		a.cron.Start()
		a.log.Info("clock checkpointing enabled", logx.Duration("interval", a.checkpointEvery))
	}

	if a.api != nil {
		a.sup.Go("http.serve", func(context.Context) error {
			return a.api.Start()
		})
	}

	if a.prof != nil {
		if err := a.prof.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	// Debug-level event log; components can also subscribe themselves.
	events, unsubEvents := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	systemd.NotifyReady()
	a.log.Info("daemon started",
		logx.Float64("speed_factor", a.table.SpeedFactor()),
		logx.Int64("game_seconds", a.clk.Now()))
	return nil
}

func (a *App) applyReload(oldCfg, newCfg *config.Config) {
	sections, attrs, _ := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "http", "pprof", "checkpoint":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	// Logging applies live.
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	a.log.Info("config reloaded", fields...)
}

// checkpointClock persists the current clock reading. Runs on the cron
// goroutine and also directly during Stop.
func (a *App) checkpointClock() {
	if a.store == nil {
		return
	}
	st := a.clk.Checkpoint()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.SaveClock(ctx, st); err != nil {
		a.log.Warn("clock checkpoint failed", logx.Err(err))
		return
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeClockCheckpoint, Data: st.GameSeconds})
	a.log.Debug("clock checkpointed", logx.Int64("game_seconds", st.GameSeconds))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	systemd.NotifyStopping()
	a.log.Info("stopping")

	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.api != nil {
		step("http", 2*time.Second, func(c context.Context) error {
			return a.api.Shutdown(c)
		})
	}
	if a.prof != nil {
		step("pprof", 1*time.Second, func(c context.Context) error {
			a.prof.Stop(c)
			return nil
		})
	}
	if a.cron != nil {
		step("cron", 2*time.Second, func(c context.Context) error {
			select {
			case <-a.cron.Stop().Done():
				return nil
			case <-c.Done():
				return c.Err()
			}
		})
	}
	step("schedules", 2*time.Second, func(c context.Context) error {
		return a.mgr.Suspend(c)
	})
	if a.store != nil {
		step("clock", 1*time.Second, func(context.Context) error {
			a.checkpointClock()
			return nil
		})
		step("storage", 1*time.Second, func(context.Context) error {
			return a.store.Close()
		})
	}
	step("supervisor", 2*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, true, nil
}
