package app

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"timetask/internal/config"
	"timetask/internal/dispatch"
	"timetask/internal/gateway"
	"timetask/internal/scheduler"
	"timetask/internal/storage"
	"timetask/internal/task"
	"timetask/internal/transport/telegram"
	"timetask/pkg/logx"
)

// App owns the whole object graph and its lifecycle.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store *storage.SQLite
	reg   *task.Registry
	gw    *gateway.Service
	disp  *dispatch.Dispatcher
	sched *scheduler.Service
	tg    *telegram.Adapter

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	loc := time.Local
	if tz := cfg.Scheduler.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		}
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	clock := task.NewClock(loc)
	reg := task.NewRegistry(store, log.With(logx.String("comp", "registry")))

	debounce, err := config.ParseDurationField("gateway.debounce_window", cfg.Gateway.DebounceWindow)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(gateway.Config{DebounceWindow: debounce},
		reg, task.RandomIDs{}, clock, log.With(logx.String("comp", "gateway")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	tg, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, gw, loc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	dispatchTimeout, err := config.ParseDurationField("dispatch.timeout", cfg.Dispatch.Timeout)
	if err != nil {
		return nil, err
	}
	retryBase, err := config.ParseDurationField("dispatch.retry_base", cfg.Dispatch.RetryBase)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispatch.Config{
		Timeout:   dispatchTimeout,
		RetryMax:  cfg.Dispatch.RetryMax,
		RetryBase: retryBase,
	}, tg, tg, log.With(logx.String("comp", "dispatch")))

	interval, err := config.ParseDurationField("scheduler.interval", cfg.Scheduler.Interval)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{Interval: interval},
		reg, disp, clock, log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		reg:    reg,
		gw:     gw,
		disp:   disp,
		sched:  sched,
		tg:     tg,
	}

	// Live-apply logging changes from config reloads.
	mgr.SetOnChange(func(c *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   c.Logging.Level,
			Console: c.Logging.ConsoleEnabled(),
			File: logx.FileConfig{
				Enabled: c.Logging.File.Enabled,
				Path:    c.Logging.File.Path,
			},
		})
	})

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	n, err := a.reg.Hydrate(ctx)
	if err != nil {
		return err
	}
	a.log.Info("task registry hydrated", logx.Int("tasks", n))

	if err := a.tg.Start(ctx); err != nil {
		return err
	}
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		if err := a.cfgMgr.Watch(watchCtx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("timetask started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
	}
	a.sched.Stop(ctx)
	a.tg.Stop()

	err := a.store.Close()
	a.log.Info("timetask stopped")
	_ = a.logSvc.Close()
	return err
}
