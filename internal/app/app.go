// Package app wires configuration, storage, the Telegram gateway and the
// bot services into one process and owns their start/stop order.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pricebot/internal/bot"
	"pricebot/internal/config"
	"pricebot/internal/engagement"
	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	"pricebot/internal/notifier"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/opsapi"
	rtsup "pricebot/internal/runtime/supervisor"
	"pricebot/internal/scheduler"
	"pricebot/internal/storage"
	"pricebot/internal/subscribers"
	kit "pricebot/internal/transport"
	telegram "pricebot/internal/transport/telegram/adapter"
	"pricebot/internal/transport/telegram/router"
	logx "pricebot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	mt   *metrics.Metrics

	store   *storage.Store
	adapter *telegram.Adapter

	notif     *notifier.Service
	registry  *subscribers.Registry
	tracker   *engagement.Tracker
	campaigns *broadcast.Service
	sched     *scheduler.Service
	cmdm      *router.CommandManager
	bot       *bot.Bot
	ops       *opsapi.Server
	opsAddr   string

	ready   atomic.Bool
	updates chan kit.Update
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg), nil)
	logs.SetAlertTargets(cfg.Telegram.AdminIDs)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     eventbus.New(),
		mt:      metrics.New(),
		store:   store,
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	if err := a.wire(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// wire builds every service on top of store, adapter, bus and metrics.
func (a *App) wire(cfg *config.Config) error {
	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return err
	}
	bcfg, err := mapBroadcast(cfg)
	if err != nil {
		return err
	}
	child := func(name string) logx.Logger { return a.log.With(logx.String("comp", name)) }

	a.mt.RegisterSubscriberGauges(
		func() float64 { return float64(a.store.SubscriberTotals().Total) },
		func() float64 { return float64(a.store.SubscriberTotals().Active) },
	)

	a.notif = notifier.New(ncfg, a.adapter, child("notifier"), a.mt)
	a.logs.SetSender(a.notif)

	a.cmdm = router.NewCommandManager(child("commands"), a.adapter, cfg.Telegram.AdminIDs,
		router.WithMetrics(a.mt))

	a.registry = subscribers.New(a.store, child("subscribers"),
		subscribers.WithAlerts(a.notif, a.cmdm.Admins),
		subscribers.WithBus(a.bus),
		subscribers.WithMetrics(a.mt),
	)
	a.tracker = engagement.New(a.store, a.registry, a.mt, child("engagement"))

	engine := broadcast.NewEngine(bcfg, a.store, a.adapter, a.registry,
		broadcast.ChatReporter{Sender: a.adapter, Log: child("broadcast")},
		child("broadcast"),
		broadcast.WithControls(engagement.Controls),
		broadcast.WithBus(a.bus),
		broadcast.WithMetrics(a.mt),
	)
	a.campaigns = broadcast.NewService(bcfg, engine, child("campaigns"))

	loc := location(cfg)
	a.bot = bot.New(bot.Deps{
		Store:    a.store,
		Registry: a.registry,
		Tracker:  a.tracker,
		Launcher: a.campaigns,
		Help:     a.cmdm,
		Log:      child("bot"),
		Location: loc,
	})

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Digest.Timezone}, child("scheduler"))
	if err := a.applyDigest(cfg); err != nil {
		return err
	}

	if cfg.Ops.Enabled {
		addr, pp := mapOps(cfg)
		a.opsAddr = addr
		a.ops = opsapi.New(opsapi.Deps{
			Reports: a.tracker,
			Jobs:    a.campaigns,
			Metrics: a.mt,
			Log:     child("ops"),
			Ready:   a.ready.Load,
			Pprof:   pp,
		})
	}
	return nil
}

// applyDigest adds, reschedules or removes the weekly digest job.
func (a *App) applyDigest(cfg *config.Config) error {
	if !cfg.Digest.Enabled {
		a.sched.Remove(scheduler.DigestJob)
		return nil
	}
	job := scheduler.Digest(a.tracker, a.notif, a.cmdm.Admins)
	return a.sched.Add(scheduler.DigestJob, digestSchedule(cfg), 30*time.Second, job)
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifier(cfg); err != nil {
			return err
		}
		if cfg.Digest.Enabled {
			if err := a.sched.Validate(digestSchedule(cfg)); err != nil {
				return fmt.Errorf("digest.schedule: %w", err)
			}
		}
		return nil
	})
	c := a.sup.Context()

	a.notif.Start(c)
	a.campaigns.Start(c)
	a.sched.Start(c)

	a.bot.Register(c, a.cmdm)
	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.ops != nil {
		a.sup.Go("ops.http", func(context.Context) error {
			return a.ops.Start(a.opsAddr)
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.startWatchdog()

	a.ready.Store(true)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.Int("admins", len(a.cmdm.Admins())),
		logx.Bool("ops", a.ops != nil),
	)
	return nil
}

// startWatchdog pings systemd at half the WatchdogSec interval when the
// unit enables it.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if a.ready.Load() {
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.ready.Store(false)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// intake first, then the workers that send, then storage
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	if a.ops != nil {
		step("ops", 2*time.Second, func(c context.Context) error { return a.ops.Shutdown(c) })
	}
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("campaigns", 3*time.Second, func(c context.Context) error { a.campaigns.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
