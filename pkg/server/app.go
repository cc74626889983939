package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	mid "QuotaGame/internal/middleware"
	"QuotaGame/internal/service/ratelimit"
	"QuotaGame/internal/usecase"
	"QuotaGame/pkg/cache"
	pkgch "QuotaGame/pkg/clickhouse"
	"QuotaGame/pkg/config"
	xhttp "QuotaGame/pkg/http"
	pkgkafka "QuotaGame/pkg/kafka"
	applogger "QuotaGame/pkg/logger"
)

// Components are the long-lived parts App starts and stops. Optional parts are nil
// when config disables them.
type Components struct {
	Session    *usecase.Session
	Pipeline   *mid.ExportPipeline
	Exporter   *usecase.RecordExporter
	HTTP       *xhttp.Server
	Consumer   *pkgkafka.Consumer
	Commands   *usecase.CommandHandler
	Producer   *pkgkafka.Producer
	Limiter    *ratelimit.Limiter
	ClickHouse *pkgch.Client
	Cache      cache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts the application and blocks until SIGINT/SIGTERM or a fatal error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	if a.cfg.Log.Collect.Enabled && a.c.Producer != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.Log.Collect.Interval,
			CountThreshold: a.cfg.Log.Collect.Threshold,
			Topic:          a.cfg.Kafka.Topics.Logs,
			Publisher:      a.c.Producer,
		})
		a.log.Info("log collector attached", applogger.String("topic", a.cfg.Kafka.Topics.Logs))
	}

	// drained by Stop during shutdown, after ctx is already done
	a.c.Pipeline.Start(context.WithoutCancel(ctx))
	a.log.Info("export pipeline started", applogger.String("backend", a.c.Exporter.Backend()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runGame(gctx) })
	if a.c.Limiter != nil {
		g.Go(func() error { return a.sweepLimiter(gctx) })
	}

	if a.c.Consumer != nil && a.c.Commands != nil {
		a.c.Consumer.RegisterHandler(a.c.Commands)
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return a.shutdown(err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.Commands.Topic()))
	}

	if err := a.c.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return a.shutdown(err)
	}
	a.log.Info("session started",
		applogger.String("session", a.c.Session.ID()),
		applogger.Duration("tick_period", a.cfg.Game.TickPeriod))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(g.Wait())
}

// runGame drives the price clock. The ticker runs faster than the tick period; the
// session itself admits at most one step per period.
func (a *App) runGame(ctx context.Context) error {
	period := a.cfg.Game.TickPeriod
	poll := period / 2
	if poll <= 0 {
		poll = period
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.c.Session.Tick(now)
		}
	}
}

func (a *App) sweepLimiter(ctx context.Context) error {
	idle := a.cfg.Server.RateLimit.IdleTime
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.c.Limiter.Sweep(idle); n > 0 {
				a.log.Debug("rate limiter swept", applogger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops inbound traffic first, then drains exports, then closes clients.
func (a *App) shutdown(cause error) error {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.c.Session.Close()
	a.c.Pipeline.Stop()

	// the collector publishes through the producer the exporter closes
	a.log.RemoveCollector()
	a.c.Exporter.Close()
	if a.c.Producer != nil && a.c.Exporter.Backend() != usecase.BackendKafka {
		if err := a.c.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return cause
}
