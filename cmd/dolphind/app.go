package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"dolphind/internal/config"
	"dolphind/internal/dolphin"
	"dolphind/internal/logging"
	"dolphind/internal/metrics"
	"dolphind/internal/notify"
	"dolphind/internal/pubsub"
	"dolphind/internal/store"
)

// app holds the long-lived components every command shares.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	log      *slog.Logger
	registry *prometheus.Registry
	dolphinM *metrics.DolphinMetrics
	rxM      *metrics.ReceiverMetrics
	store    store.Store
	bus      *pubsub.Bus
	notifier notify.Notifier
	actor    *dolphin.Dolphin
	crash    *logging.CrashHandler
}

// loadConfig reads, overrides and validates the configuration at path.
func loadConfig(path string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return loader, cfg, nil
}

// newApp opens the store and notifier and builds, but does not start, the
// actor.
func newApp(cfg *config.Config) (a *app, err error) {
	lc, err := cfg.LoggingSettings()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	a = &app{
		cfg:      cfg,
		logger:   logger,
		log:      logger.Logger,
		registry: metrics.NewRegistry(),
		bus:      pubsub.New(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	for _, w := range config.Check(cfg).Warnings() {
		a.log.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a.dolphinM = metrics.NewDolphinMetrics(a.registry)
	a.rxM = metrics.NewReceiverMetrics(a.registry)
	a.crash = logging.NewCrashHandler(filepath.Join(config.DataDir(), "crashes"), version, logger.WithComponent("crash"))

	a.store, err = store.Open(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.notifier, err = notify.Open(cfg.Notify.Backend, logger.WithComponent("notify"))
	if err != nil {
		return nil, fmt.Errorf("open notifier: %w", err)
	}

	dc, err := cfg.DolphinSettings()
	if err != nil {
		return nil, err
	}
	a.actor = dolphin.New(a.store, a.bus, dc,
		dolphin.WithLogger(logger.WithComponent("dolphin")),
		dolphin.WithMetrics(a.dolphinM),
	)
	return a, nil
}

// startActor runs the actor in the background and returns a function that
// stops it and waits for the final flush.
func (a *app) startActor(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		if err := a.crash.Guard("dolphin", func() error { return a.actor.Run(ctx) }); err != nil {
			a.log.Error("actor stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-a.actor.Done()
	}
}

// Close releases everything newApp opened.
func (a *app) Close() error {
	var errs []error
	if a.bus != nil {
		a.bus.Close()
	}
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
