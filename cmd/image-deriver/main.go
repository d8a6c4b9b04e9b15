package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/api/handlers/ops"
	"github.com/imgpipe/image-deriver/internal/api/router"
	"github.com/imgpipe/image-deriver/internal/api/server"
	"github.com/imgpipe/image-deriver/internal/config"
	"github.com/imgpipe/image-deriver/internal/events/miniowatch"
	"github.com/imgpipe/image-deriver/internal/infra/kafka/consumer"
	"github.com/imgpipe/image-deriver/internal/infra/kafka/producer"
	objectmsg "github.com/imgpipe/image-deriver/internal/kafka/handlers/object"
	derivativerepo "github.com/imgpipe/image-deriver/internal/repository/derivative"
	"github.com/imgpipe/image-deriver/internal/service/derive"
	"github.com/imgpipe/image-deriver/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Retry strategy for broker fetch/commit/publish. Uploads are never retried.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Connect to object storage (MinIO).
	st, err := file.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Optional result sinks: Postgres records and a derivative-ready topic.
	var (
		db   *dbpg.DB
		sink derive.ResultSink
		pub  derive.Publisher
		p    *producer.Producer
	)

	if cfg.Database.Enabled {
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err = dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		sink = derivativerepo.NewRepository(db)
	}

	if cfg.Kafka.Enabled && cfg.Kafka.ResultsTopic != "" {
		p = producer.New(&cfg.Kafka, strategy)
		pub = p
	}

	// The derive service is the single entry point for every event source.
	service := derive.New(st, sink, pub, cfg.Images.OriginalSuffix, cfg.Images.Sizes)

	var wg sync.WaitGroup

	// Direct storage-finalize trigger: bucket notifications.
	if cfg.Storage.Listen {
		listener := miniowatch.New(st, service)
		wg.Add(1)
		go listener.Listen(ctx, &wg)
	}

	// Brokered trigger: object-created events from Kafka.
	var c *consumer.Consumer
	if cfg.Kafka.Enabled {
		c = consumer.New(&cfg.Kafka, strategy, objectmsg.NewCreatedHandler(service))
		wg.Add(1)
		go c.Consume(ctx, &wg)
	}

	// Ops HTTP surface.
	r := router.Setup(ops.NewHandler(cfg.Images.OriginalSuffix, cfg.Images.Sizes))
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for listener and consumer goroutines to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if db != nil {
		if err := db.Master.Close(); err != nil {
			zlog.Logger.Printf("failed to close master DB: %v", err)
		}
		for i, slave := range db.Slaves {
			if err := slave.Close(); err != nil {
				zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
			}
		}
	}

	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
	if c != nil {
		if err := c.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
		}
	}
}
