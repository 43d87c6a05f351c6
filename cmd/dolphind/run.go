package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"dolphind/internal/config"
	"dolphind/internal/dolphin"
	"dolphind/internal/health"
	"dolphind/internal/logging"
	"dolphind/internal/metrics"
	"dolphind/internal/ratelimit"
	"dolphind/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// cmdRun runs the daemon until ctx is cancelled.
func cmdRun(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("run", out)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer loader.Close()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			a.log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	checker := health.NewChecker(nil)
	checker.RegisterFunc("store", true, health.StoreCheck(a.store))
	checker.RegisterFunc("dolphin", false, health.DolphinCheck(a.actor))

	a.log.Info("starting dolphind",
		"version", version,
		"config", loader.Path(),
		"storage", cfg.Storage.Type,
		"http", cfg.HTTP.Enabled,
	)

	// Bind before any goroutine starts so a busy port leaves nothing running.
	var ln net.Listener
	if cfg.HTTP.Enabled {
		l, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
		}
		ln = l
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.crash.Guard("dolphin", func() error { return a.actor.Run(gctx) })
	})

	g.Go(func() error {
		return a.crash.Guard("stats-watcher", func() error { return a.watchStats(gctx) })
	})

	g.Go(func() error {
		return a.crash.Guard("readiness", func() error {
			return waitReady(gctx, a.actor, checker)
		})
	})

	if cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler(a.registry))
		checker.Mount(mux)
		var api http.Handler = newAPI(a.actor, a.logger.WithComponent("api"))
		if cfg.HTTP.RateLimit > 0 {
			api = ratelimit.NewKeyed(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, 10*time.Minute, nil).Middleware(api)
		}
		mux.Handle("/v1/", api)

		srv := &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		a.log.Info("http listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if loader.Path() != "" {
		a.watchConfig(loader)
		if err := loader.Watch(); err != nil {
			a.log.Warn("config watch disabled", "error", err)
		} else {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case err, ok := <-loader.Errors():
						if !ok {
							return nil
						}
						a.log.Warn("config reload rejected", "error", err)
					}
				}
			})
		}
	}

	err = g.Wait()
	<-a.actor.Done()
	a.log.Info("dolphind stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchStats logs every stats change and announces a pending level up once.
func (a *app) watchStats(ctx context.Context) error {
	updates, unsubscribe := a.bus.Subscribe(dolphin.TopicStatsUpdated, 0)
	defer unsubscribe()

	announced := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
		}

		sctx, cancel := context.WithTimeout(ctx, time.Second)
		stats, err := a.actor.Stats(sctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, dolphin.ErrStopped) {
				return nil
			}
			a.log.Warn("stats read failed", "error", err)
			continue
		}

		a.log.Debug("stats updated",
			"icounter", stats.Icounter,
			"butthurt", stats.Butthurt,
			"level", stats.Level,
		)
		if stats.LevelUpPending && !announced {
			body := fmt.Sprintf("Level %d reached its limit. Run \"dolphind level-up\".", stats.Level)
			if err := a.notifier.Message("Dolphin level up", body); err != nil {
				a.log.Warn("level up notification failed", "error", err)
			}
		}
		announced = stats.LevelUpPending
	}
}

// waitReady marks the checker ready once the actor answers its first
// stats request, which happens after the saved record is loaded.
func waitReady(ctx context.Context, actor *dolphin.Dolphin, checker *health.Checker) error {
	for {
		sctx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := actor.Stats(sctx)
		cancel()
		if err == nil {
			checker.SetReady(true)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// watchConfig applies log level changes live; anything else needs a restart.
func (a *app) watchConfig(loader *config.Loader) {
	loader.OnChange(func(old, updated *config.Config) {
		if old.Logging.Level != updated.Logging.Level {
			level, err := logging.ParseLevel(updated.Logging.Level)
			if err != nil {
				a.log.Warn("ignoring log level", "level", updated.Logging.Level, "error", err)
			} else {
				a.logger.SetLevel(level)
				a.log.Info("log level changed", "level", logging.LevelString(level))
			}
		}

		probe := updated.Clone()
		probe.Logging.Level = old.Logging.Level
		if !sameSettings(old, probe) {
			a.log.Warn("config changed; restart required to apply")
		}
	})
}

// sameSettings compares two configurations by their canonical TOML form.
func sameSettings(a, b *config.Config) bool {
	ea, err := encodeConfig(a)
	if err != nil {
		return false
	}
	eb, err := encodeConfig(b)
	if err != nil {
		return false
	}
	return ea == eb
}
