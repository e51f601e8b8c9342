package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "ChainCast/internal/domain/repository"
	"ChainCast/internal/stream"
	"ChainCast/internal/usecase"
	pkgch "ChainCast/pkg/clickhouse"
	"ChainCast/pkg/config"
	xhttp "ChainCast/pkg/http"
	pkgkafka "ChainCast/pkg/kafka"
	applogger "ChainCast/pkg/logger"
	"ChainCast/pkg/queue"
)

// TrainQueue is the lifecycle contract the app expects from the training
// queue. Both the memory and Redis queues satisfy it.
type TrainQueue interface {
	queue.QueueService
	RegisterJob(job queue.Job)
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	coord      *stream.Coordinator
	pipeline   *usecase.Pipeline
	bridge     *usecase.OracleBridge
	trainQueue TrainQueue
	retrainJob queue.Job
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	events     drepo.EventPublisher
	httpServer *xhttp.Server
	handler    xhttp.Handler
}

// New creates a new App instance with all dependencies. Optional pieces
// (consumer, ClickHouse, events, oracle bridge) may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	coord *stream.Coordinator,
	pipeline *usecase.Pipeline,
	bridge *usecase.OracleBridge,
	trainQueue TrainQueue,
	retrainJob queue.Job,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		coord:      coord,
		pipeline:   pipeline,
		bridge:     bridge,
		trainQueue: trainQueue,
		retrainJob: retrainJob,
		handler:    handler,
	}
}

// SetConsumer attaches an optional Kafka observation consumer.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// SetClickHouse attaches the ClickHouse client so shutdown can close it.
func (a *App) SetClickHouse(c *pkgch.Client) { a.chClient = c }

// SetEventPublisher attaches the audit event publisher for closing.
func (a *App) SetEventPublisher(p drepo.EventPublisher) { a.events = p }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.l

	// Training queue carries quick retrains off the serving path.
	a.trainQueue.RegisterJob(a.retrainJob)
	if err := a.trainQueue.Start(); err != nil {
		l.Error("train queue start error", applogger.Error(err))
		return err
	}

	// Full bootstrap train before serving, bounded by the configured timeout.
	if a.cfg.Training.Bootstrap {
		trainCtx := ctx
		if a.cfg.Training.Timeout > 0 {
			var tcancel context.CancelFunc
			trainCtx, tcancel = context.WithTimeout(ctx, a.cfg.Training.Timeout)
			defer tcancel()
		}
		if err := a.pipeline.Train(trainCtx, false); err != nil {
			l.Warn("bootstrap training failed, serving untrained", applogger.Error(err))
		}
	}

	if a.cfg.Stream.AutoStart && a.coord != nil {
		if err := a.coord.Start(ctx); err != nil {
			l.Warn("stream autostart failed", applogger.Error(err))
		} else {
			l.Info("stream coordinator autostarted",
				applogger.Strings("symbols", a.cfg.Stream.Symbols))
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Periodic on-chain forecast publication.
	if a.bridge != nil && a.cfg.Oracle.PublishCycle > 0 {
		go a.publishLoop(ctx)
		l.Info("oracle publish cycle started",
			applogger.Duration("cycle", a.cfg.Oracle.PublishCycle))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Oracle.PublishCycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.bridge.PublishForecast(ctx); err != nil {
				a.l.Warn("oracle publish cycle error", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	l := a.l

	if a.coord != nil {
		if err := a.coord.Stop(); err != nil {
			l.Warn("coordinator stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.trainQueue.Stop(shutdownCtx); err != nil {
		l.Warn("train queue stop error", applogger.Error(err))
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			l.Warn("event publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.RemoveCollector()
	l.Info("shutdown complete")
	return nil
}
