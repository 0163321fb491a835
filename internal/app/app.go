// Package app wires configuration, storage, gateways and services into a
// runnable daemon.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/config"
	"pulsebot/internal/eventbus"
	"pulsebot/internal/gateway/calendar"
	"pulsebot/internal/gateway/messaging"
	"pulsebot/internal/ledger"
	"pulsebot/internal/services/dayplan"
	"pulsebot/internal/services/dispatch"
	"pulsebot/internal/storage"
	"pulsebot/internal/transport/telegram/router"
	"pulsebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store storage.Store
	bus   eventbus.Bus
	bot   *tele.Bot

	dispatch *dispatch.Service
	dayplan  *dayplan.Service
	router   *router.Router

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, _ := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log := logs.Logger().With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	store, err := storage.Open(storageConfig(cfg), logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	cal, err := calendarGateway(cfg, logs.Logger().With(logx.String("comp", "calendar")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		logs.Close()
		return nil, fmt.Errorf("telegram.token is required")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	dispCfg, err := dispatchConfig(cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	led := ledger.New(store, logs.Logger().With(logx.String("comp", "ledger")), ledger.Options{
		ClaimTTL:    dispCfg.ClaimTTL,
		MaxAttempts: dispCfg.MaxAttempts,
	})
	gw := messaging.NewTelegram(bot, logs.Logger().With(logx.String("comp", "telegram")))

	disp := dispatch.New(dispCfg, store, led, gw, bus, logs.Logger().With(logx.String("comp", "dispatch")))
	dp := dayplan.New(dayplanConfig(cfg), store, cal, logs.Logger().With(logx.String("comp", "dayplan")))

	rt := router.New(bot, store, dp, disp, cfg.Telegram.OwnerUserIDs, logs.Logger().With(logx.String("comp", "router")))
	rt.Register()

	return &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		store:    store,
		bus:      bus,
		bot:      bot,
		dispatch: disp,
		dayplan:  dp,
		router:   rt,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	// Reject bad hot-reloads before they are committed or published.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := dispatchConfig(cfg); err != nil {
			return err
		}
		if cfg.Storage != nil {
			if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
				return err
			}
		}
		return nil
	})

	// Dispatch needs durable claims; without storage it stays off.
	if a.dispatch.Enabled() && a.store != nil {
		a.dispatch.Start(runCtx)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bot.Start()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started", logx.Bool("dispatch", a.dispatch.Enabled()), logx.Bool("storage", a.store != nil))
	return nil
}

// applyConfig pushes a validated hot-reload into the running services.
// Storage and telegram credentials are boot-time only; changing them
// requires a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	dispCfg, err := dispatchConfig(cfg)
	if err != nil {
		// Validator should have caught this; keep running on the old config.
		a.log.Warn("reload rejected", logx.Err(err))
		return
	}
	a.dispatch.Apply(dispCfg)
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.runCancel != nil {
		a.runCancel()
	}

	a.bot.Stop()
	a.dispatch.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop timed out waiting for background loops")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
}

// ---- config mapping ----

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func dispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	interval, err := config.ParseDurationOrDefault("dispatch.interval", cfg.Dispatch.Interval, time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	claimTTL, err := config.ParseDurationOrDefault("dispatch.claim_ttl", cfg.Dispatch.ClaimTTL, ledger.DefaultClaimTTL)
	if err != nil {
		return dispatch.Config{}, err
	}
	if tz := strings.TrimSpace(cfg.Dispatch.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return dispatch.Config{}, fmt.Errorf("dispatch.timezone: invalid %q: %w", tz, err)
		}
	}
	retention := 7 * 24 * time.Hour
	if cfg.Dispatch.RetentionDays > 0 {
		retention = time.Duration(cfg.Dispatch.RetentionDays) * 24 * time.Hour
	}
	return dispatch.Config{
		Enabled:     cfg.Dispatch.Enabled,
		Interval:    interval,
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		ClaimTTL:    claimTTL,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		RatePerSec:  cfg.Dispatch.RatePerSec,
		Retention:   retention,
		Timezone:    cfg.Dispatch.Timezone,
	}, nil
}

func dayplanConfig(cfg *config.Config) dayplan.Config {
	c := dayplan.Config{
		WorkStart:     cfg.Planner.WorkStart,
		WorkEnd:       cfg.Planner.WorkEnd,
		MaxCandidates: cfg.Planner.MaxCandidates,
	}
	if cfg.Planner.SnoozeMinutes > 0 {
		c.SnoozeDelay = time.Duration(cfg.Planner.SnoozeMinutes) * time.Minute
	}
	return c
}

func calendarGateway(cfg *config.Config, log logx.Logger) (calendar.Gateway, error) {
	if cfg.Calendar == nil || strings.TrimSpace(cfg.Calendar.BaseURL) == "" {
		return calendar.None{}, nil
	}
	timeout, err := config.ParseDurationOrDefault("calendar.timeout", cfg.Calendar.Timeout, 0)
	if err != nil {
		return nil, err
	}
	return calendar.NewHTTP(calendar.HTTPConfig{
		BaseURL: cfg.Calendar.BaseURL,
		Token:   cfg.Calendar.Token,
		Timeout: timeout,
	}, log)
}
