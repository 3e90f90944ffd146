package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"StratGov/internal/service/metricfeed"
	"StratGov/internal/services/regime"
	"StratGov/internal/usecase"
	pkgch "StratGov/pkg/clickhouse"
	"StratGov/pkg/config"
	xhttp "StratGov/pkg/http"
	applogger "StratGov/pkg/logger"
)

// App encapsulates the engine's lifecycle: HTTP surface, falsifier
// monitor, regime detector, and the live metric feed.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	handler  xhttp.Handler
	monitor  *usecase.FalsifierMonitor
	detector *regime.Detector
	feed     *metricfeed.Client
	chClient *pkgch.Client

	httpServer *xhttp.Server
}

// New creates an App. feed and chClient may be nil when those backends
// are disabled in config.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	monitor *usecase.FalsifierMonitor,
	detector *regime.Detector,
	feed *metricfeed.Client,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		handler:  handler,
		monitor:  monitor,
		detector: detector,
		feed:     feed,
		chClient: chClient,
	}
}

// Run starts every component and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.feed != nil {
		go a.feed.Run(ctx)
		a.log.Info("metric feed started")
	}

	if a.cfg.Regime.Enabled && a.detector != nil {
		go a.detector.Run(ctx, a.cfg.Regime.Interval)
		a.log.Info("regime detector started", applogger.Duration("interval", a.cfg.Regime.Interval))
	}

	if a.cfg.Monitor.Enabled && a.monitor != nil {
		a.monitor.Start(ctx)
		a.log.Info("falsifier monitor started")
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(cancel)
}

// shutdown stops components in reverse start order.
func (a *App) shutdown(cancel context.CancelFunc) error {
	if a.cfg.Monitor.Enabled && a.monitor != nil {
		a.monitor.Stop()
	}

	// Stops the feed and the detector loops.
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer done()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn("metric feed close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
