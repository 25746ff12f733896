// Package app wires the bot together: config, logging, storage, the
// scheduling engine and the Telegram transport.
package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/engine"
	"remindbot/internal/notify"
	"remindbot/internal/reminders"
	"remindbot/internal/store"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

type App struct {
	cfgPath string

	logSvc  *logx.Service
	log     logx.Logger
	store   store.Store
	adapter *telegram.Adapter
	engine  *engine.Engine
	svc     *reminders.Service
	router  *bot.Router

	msgCh chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
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

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.Duration(cfg.Storage.BusyTimeout, 0),
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.Duration(cfg.Telegram.PollTimeout, 0),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	deliverer := notify.New(notify.Config{
		RatePerSec: cfg.Reminders.RatePerSec,
	}, adapter, log.With(logx.String("comp", "notify")))

	clk := clock.New()
	alarmEvery := config.Duration(cfg.Reminders.AlarmRepeatInterval, 0)

	eng := engine.New(engine.Config{
		Tick:          config.Duration(cfg.Reminders.Tick, 0),
		AlarmInterval: alarmEvery,
	}, st, deliverer, clk, log.With(logx.String("comp", "engine")))

	svc, err := reminders.New(reminders.Config{
		Timezone:      cfg.Reminders.Timezone,
		Grace:         config.Duration(cfg.Reminders.CreateGrace, 0),
		AlarmInterval: alarmEvery,
	}, st, eng, clk, log.With(logx.String("comp", "reminders")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		logSvc:  logSvc,
		log:     log,
		store:   st,
		adapter: adapter,
		engine:  eng,
		svc:     svc,
		router:  bot.NewRouter(svc, adapter, clk, log.With(logx.String("comp", "bot"))),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// Recover persisted reminders before anything can fire or mutate them.
	if _, err := a.svc.Recover(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	a.engine.Start(ctx)

	a.msgCh = make(chan transport.Message, 128)
	if err := a.adapter.Start(ctx, a.msgCh); err != nil {
		return err
	}
	go a.router.Run(ctx, a.msgCh)

	// Hot-reload only what is safe to change at runtime.
	if err := config.Watch(ctx, a.cfgPath, a.log.With(logx.String("comp", "config")), func(cfg *config.Config) {
		a.logSvc.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.ConsoleEnabled(),
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}

	a.log.Info("remindbot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_ = a.adapter.Stop(ctx)
	a.engine.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("remindbot stopped")
	return a.logSvc.Close()
}
