package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/internal/service"
	"github.com/noah-isme/doctorat-api/pkg/cache"
	"github.com/noah-isme/doctorat-api/pkg/config"
	"github.com/noah-isme/doctorat-api/pkg/database"
	"github.com/noah-isme/doctorat-api/pkg/export"
	"github.com/noah-isme/doctorat-api/pkg/jobs"
	"github.com/noah-isme/doctorat-api/pkg/kafka"
	"github.com/noah-isme/doctorat-api/pkg/logger"
	"github.com/noah-isme/doctorat-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr.With(zap.String("component", "notifier"))); err != nil {
		logr.Sugar().Fatalw("notifier stopped", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	dedup := repository.NewDedupRepository(redisClient, "notifier", logr)
	defer dedup.Close() //nolint:errcheck

	artifacts, err := storage.NewLocalStorage(cfg.Notifier.OutputDir)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	users := client.NewIdentityClient(cfg.Upstream.UserServiceURL, cfg.Upstream.Timeout)
	users.Observe(metrics)
	notifications := service.NewNotificationService(service.NotificationDeps{
		Users:    users,
		Demandes: repository.NewDemandeRepository(db),
		Dedup:    dedup,
		PDF:      export.NewPDFExporter(""),
		Files:    artifacts,
		DedupTTL: cfg.Notifier.DedupTTL,
		Metrics:  metrics,
		Logger:   logr,
	})

	queue := jobs.NewQueue[service.NotificationJob]("notifications", notifications.Render, jobs.QueueConfig{
		Workers:    cfg.Notifier.Workers,
		MaxRetries: cfg.Notifier.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnGiveUp: func(id, jobType string, err error) {
			logr.Error("notification abandoned", zap.String("job_id", id), zap.String("type", jobType), zap.Error(err))
		},
	})
	notifications.UseQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	router := notifications.Router(cfg.Kafka.DossierTopic)
	consumer, err := kafka.NewConsumer(cfg.Kafka, router.Topics(), router, logr)
	if err != nil {
		return err
	}
	defer consumer.Close()

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Notifier.MetricsPort),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("notifier consuming", zap.Strings("topics", router.Topics()), zap.String("group", cfg.Kafka.ConsumerGroup))
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
