package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"MarketPulse/internal/dispatch"
	"MarketPulse/internal/handler/api"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg           *config.Config
	log           *applogger.Logger
	ingestor      *usecase.TickIngestor
	consumer      *pkgkafka.Consumer
	kh            pkgkafka.MessageHandler
	chClient      *pkgch.Client
	dispatcher    *dispatch.Dispatcher
	cycle         *usecase.AnalysisCycle
	archiveWriter *usecase.ArchiveWriter
	httpServer    *xhttp.Server
	handler       *api.MarketEchoHandler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	ingestor *usecase.TickIngestor,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	dispatcher *dispatch.Dispatcher,
	cycle *usecase.AnalysisCycle,
	archiveWriter *usecase.ArchiveWriter,
	handler *api.MarketEchoHandler,
) *App {
	return &App{
		cfg:           cfg,
		log:           log,
		ingestor:      ingestor,
		consumer:      consumer,
		kh:            kh,
		chClient:      chClient,
		dispatcher:    dispatcher,
		cycle:         cycle,
		archiveWriter: archiveWriter,
		handler:       handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Downstream first so nothing produced at startup is lost.
	if a.archiveWriter != nil {
		a.archiveWriter.Start(ctx)
	}
	a.dispatcher.Start(ctx)

	// Start stream ingestion
	go func() {
		if err := a.ingestor.Start(ctx); err != nil {
			a.log.Error("ingestor error", applogger.Error(err))
		}
	}()
	a.log.Info("ingestor started", applogger.Strings("symbols", a.cfg.Stream.Symbols))

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start the evaluation loop
	a.cycle.Start(ctx)
	a.log.Info("analysis cycle started",
		applogger.Duration("interval", a.cfg.Analysis.Interval),
		applogger.Int("workers", a.cfg.Analysis.CycleWorkers))

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services: ingest first so no new ticks
// enter, then the cycle, then the buffered writers drain.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.ingestor.Shutdown(ctx); err != nil {
		a.log.Warn("ingestor stop error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.cycle.Stop()

	if a.archiveWriter != nil {
		a.archiveWriter.Close()
	}
	a.dispatcher.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	a.log.RemoveCollector()
	return nil
}
