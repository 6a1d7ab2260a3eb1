package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/au-stream/internal/config"
	"github.com/glizzus/au-stream/internal/datalayer"
	"github.com/glizzus/au-stream/internal/metrics"
	"github.com/glizzus/au-stream/internal/pipeline"
	"github.com/glizzus/au-stream/internal/repository"
	"github.com/glizzus/au-stream/internal/worker"
)

func runWorkerForever(ctx context.Context) error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	logConfig, err := config.NewLogConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load log config: %w", err)
	}
	level, err := logConfig.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetLogLoggerLevel(level)

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	workerConfig, err := config.NewWorkerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load worker config: %w", err)
	}
	pipelineConfig, err := config.NewPipelineConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load pipeline config: %w", err)
	}

	rdb, err := datalayer.NewRedisClient(ctx, redisConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}

	workerMetrics := metrics.New()
	if workerConfig.MetricsAddr != "" {
		stopMetrics := serveMetrics(workerConfig.MetricsAddr, workerMetrics.Handler())
		defer stopMetrics()
	}

	processor, err := worker.NewProcessor(
		storage,
		repository.NewPostgresConversionRepository(pool),
		workerMetrics,
		pipeline.Options{
			BlockSize:      pipelineConfig.BlockSize,
			BinaryCapacity: pipelineConfig.BinaryCapacity,
			AudioCapacity:  pipelineConfig.AudioCapacity,
		},
	)
	if err != nil {
		return err
	}

	jobReceiver, err := worker.NewRedisJobReceiver(ctx, rdb, worker.RedisJobReceiverOptions{
		Stream:   redisConfig.JobStream,
		Group:    redisConfig.ConsumerGroup,
		Consumer: workerConfig.Consumer,
		Count:    workerConfig.Batch,
		Block:    workerConfig.Block,
	})
	if err != nil {
		return err
	}

	slog.Info(
		"Worker started",
		slog.String("consumer", workerConfig.Consumer),
		slog.String("stream", redisConfig.JobStream),
		slog.String("group", redisConfig.ConsumerGroup),
	)

	for {
		jobs, err := jobReceiver.ReceiveJobs(ctx)
		if ctx.Err() != nil {
			slog.Info("Worker shutting down")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive jobs: %w", err)
		}
		workerMetrics.RecordJobsReceived(len(jobs))

		for _, received := range jobs {
			_, err := processor.Process(ctx, received.Job)

			// Failed conversions are recorded and will fail again, so only
			// jobs whose outcome was lost stay pending for redelivery.
			var recordErr *worker.RecordError
			if errors.As(err, &recordErr) {
				slog.Error(
					"Leaving job pending",
					slog.String("jobID", received.Job.ID),
					slog.String("messageID", received.MessageID),
					slog.Any("error", err),
				)
				continue
			}
			if err := jobReceiver.Ack(ctx, received.MessageID); err != nil {
				return err
			}
		}
	}
}

// serveMetrics serves handler at /metrics on addr in the background. The
// returned function shuts the server down.
func serveMetrics(addr string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down metrics server", slog.Any("error", err))
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWorkerForever(ctx); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
