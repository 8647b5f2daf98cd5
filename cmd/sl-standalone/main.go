package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tuanvumaihuynh/stock-ledger/internal/config"
	"github.com/tuanvumaihuynh/stock-ledger/internal/event"
	"github.com/tuanvumaihuynh/stock-ledger/internal/http"
	"github.com/tuanvumaihuynh/stock-ledger/internal/http/metric"
	"github.com/tuanvumaihuynh/stock-ledger/internal/log"
	"github.com/tuanvumaihuynh/stock-ledger/internal/relay"
	"github.com/tuanvumaihuynh/stock-ledger/internal/repository"
	"github.com/tuanvumaihuynh/stock-ledger/internal/service"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/mq"
	"github.com/tuanvumaihuynh/stock-ledger/internal/telemetry"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/cmdutil"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error running standalone application: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	time.Local = time.UTC

	type Config struct {
		Log      config.Log
		Postgres config.Postgres
		HTTP     config.HTTP
		Relay    config.Relay
		Kafka    config.Kafka
		Otel     config.Otel
	}
	cfg, err := config.New[Config]()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := log.NewSlogLogger(cfg.Log)

	cleanupTracer, err := telemetry.InitTracer(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("error initializing tracer: %w", err)
	}
	defer func() {
		if err := cleanupTracer(ctx); err != nil {
			logger.ErrorContext(ctx, "error cleaning up tracer", slog.Any("error", err))
		}
	}()

	pgxPool, err := db.NewPgxPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("error creating pgx pool: %w", err)
	}
	defer pgxPool.Close()

	dbClient := db.NewClient(pgxPool,
		db.WithLockTimeout(cfg.Postgres.LockTimeout),
		db.WithTxRetries(cfg.Postgres.TxMaxRetries, 0),
	)

	v, err := validator.NewDefaultValidator()
	if err != nil {
		return fmt.Errorf("error creating validator: %w", err)
	}

	productRepository := repository.NewProductRepository(dbClient)
	borrowRecordRepository := repository.NewBorrowRecordRepository(dbClient)
	returnRecordRepository := repository.NewReturnRecordRepository(dbClient)
	outboxMsgRepository := repository.NewOutboxMsgRepository(dbClient)

	ledgerService := service.NewLedgerService(
		dbClient,
		v,
		productRepository,
		borrowRecordRepository,
		returnRecordRepository,
		outboxMsgRepository,
	)

	// stopCtx is done on SIGINT/SIGTERM or when run returns early with an error.
	stopCtx, stop := context.WithCancel(ctx)
	interruptChan := cmdutil.InterruptChan()
	go func() {
		select {
		case <-interruptChan:
		case <-stopCtx.Done():
		}
		stop()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	defer stop()

	if cfg.Relay.Enabled {
		kafkaProducer, err := mq.NewKafkaProducer(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("error creating kafka producer: %w", err)
		}

		kafkaConsumer, err := mq.NewKafkaConsumer(ctx, cfg.Kafka, logger)
		if err != nil {
			kafkaProducer.Close()
			return fmt.Errorf("error creating kafka consumer: %w", err)
		}

		eventCleanup, err := event.New(logger, v, kafkaConsumer).Run(ctx)
		if err != nil {
			kafkaConsumer.Close()
			kafkaProducer.Close()
			return fmt.Errorf("error running event service: %w", err)
		}
		logger.InfoContext(ctx, "event service started")

		wg.Go(func() {
			<-stopCtx.Done()

			logger.InfoContext(ctx, "event service is shutting down")
			eventCleanup()

			logger.InfoContext(ctx, "event service is stopped")
		})

		wg.Go(func() {
			svc := relay.NewService(cfg.Relay, logger, dbClient, outboxMsgRepository, kafkaProducer)
			cleanup := svc.Run(ctx)
			logger.InfoContext(ctx, "relay service started")

			<-stopCtx.Done()

			logger.InfoContext(ctx, "relay service is shutting down")
			cleanup()
			kafkaProducer.Close()

			logger.InfoContext(ctx, "relay service is stopped")
		})
	}

	httpSvc := http.New(cfg.HTTP, logger, metric.New(), ledgerService, dbClient)
	httpCleanup, err := httpSvc.Run(ctx)
	if err != nil {
		return fmt.Errorf("error running http service: %w", err)
	}
	logger.InfoContext(ctx, "http service started", slog.String("address", fmt.Sprintf(":%d", cfg.HTTP.Port)))

	wg.Go(func() {
		<-stopCtx.Done()

		logger.InfoContext(ctx, "http service is shutting down")
		if err := httpCleanup(ctx); err != nil {
			logger.ErrorContext(ctx, "error shutting down http service", slog.Any("error", err))
		}

		logger.InfoContext(ctx, "http service is stopped")
	})

	<-stopCtx.Done()

	return nil
}
