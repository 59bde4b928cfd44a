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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/doctorat-api/api/swagger"
	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/handler"
	"github.com/noah-isme/doctorat-api/internal/middleware"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/internal/service"
	"github.com/noah-isme/doctorat-api/internal/workflow"
	"github.com/noah-isme/doctorat-api/migrations"
	"github.com/noah-isme/doctorat-api/pkg/cache"
	"github.com/noah-isme/doctorat-api/pkg/config"
	"github.com/noah-isme/doctorat-api/pkg/database"
	"github.com/noah-isme/doctorat-api/pkg/kafka"
	"github.com/noah-isme/doctorat-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/doctorat-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/doctorat-api/pkg/middleware/requestid"
	"github.com/noah-isme/doctorat-api/pkg/storage"
)

// @title Doctorat API
// @version 1.0.0
// @description Doctoral enrollment and thesis defense workflow
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// inscriptionSource is served locally by the dossier service unless a remote enrollment service is configured.
type inscriptionSource interface {
	InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error)
}

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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("api gateway stopped", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS, logr); err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(cfg.Kafka, 5*time.Second, logr)
	if err != nil {
		return err
	}
	defer producer.Close()
	if cfg.Kafka.CreateTopics {
		topics := append([]string{cfg.Kafka.DossierTopic}, models.DefenseTopics...)
		if err := kafka.EnsureTopics(ctx, producer.Client(), cfg.Kafka.TopicPartitions, cfg.Kafka.ReplicationFactor, topics...); err != nil {
			logr.Warn("kafka topic provisioning failed", zap.Error(err))
		}
	}

	files, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	txRunner := database.NewTxRunner(db, cfg.Database.TxTimeout)

	campaignRepo := repository.NewCampaignRepository(db)
	dossierRepo := repository.NewDossierRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	demandeRepo := repository.NewDemandeRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	duration := workflow.DurationPolicy{Initial: cfg.Duree.Initiale, Maximum: cfg.Duree.Maximale, Alert: cfg.Duree.Alerte}
	prerequis := workflow.PrerequisPolicy{
		MinArticles:      cfg.Prereqs.MinArticles,
		MinConferences:   cfg.Prereqs.MinConferences,
		MinTrainingHours: cfg.Prereqs.MinTrainingHours,
	}

	identity := client.NewIdentityClient(cfg.Upstream.UserServiceURL, cfg.Upstream.Timeout)
	identity.Observe(metrics)
	events := service.NewEventOutbox(outboxRepo, cfg.Kafka.DossierTopic)
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	documentSvc := service.NewDocumentService(documentRepo, files, signer, service.DocumentPolicy{
		MaxSize:      cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
	}, logr)
	dossierSvc := service.NewDossierService(campaignRepo, dossierRepo, documentSvc, identity, events, txRunner, validate, logr,
		service.WithDurationPolicy(duration),
		service.WithDossierMetrics(metrics),
	)
	checks := map[string]handler.Check{"postgres": db.PingContext}
	var cacheSvc *service.CacheService
	if cfg.Redis.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, campaign cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, "doctorat:")
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, cfg.Redis.CacheTTL, metrics, logr)
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}
	campaignSvc := service.NewCampaignService(campaignRepo, dossierRepo, validate, logr, service.WithCampaignCache(cacheSvc))

	var inscription inscriptionSource = dossierSvc
	if cfg.Upstream.InscriptionServiceURL != "" {
		remote := client.NewInscriptionClient(cfg.Upstream.InscriptionServiceURL, cfg.APIPrefix, cfg.Upstream.Timeout)
		remote.Observe(metrics)
		inscription = remote
	}
	demandeSvc := service.NewDemandeService(demandeRepo, inscription, documentSvc, events, txRunner, validate, logr,
		service.WithDemandeDurationPolicy(duration),
		service.WithPrerequisPolicy(prerequis),
		service.WithDemandeMetrics(metrics),
	)
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)

	campaignHandler := handler.NewCampaignHandler(campaignSvc)
	dossierHandler := handler.NewDossierHandler(dossierSvc, documentSvc, cfg.APIPrefix)
	demandeHandler := handler.NewDemandeHandler(demandeSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/documents/:id/download", dossierHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleAdmin)
	doctorant := middleware.RequireRoles(models.RoleDoctorant)
	directeur := middleware.RequireRoles(models.RoleDirecteur)

	campagnes := secured.Group("/campagnes")
	campagnes.GET("", campaignHandler.List)
	campagnes.GET("/active", campaignHandler.ListActive)
	campagnes.GET("/current", campaignHandler.Current)
	campagnes.GET("/:id", campaignHandler.Get)
	campagnes.GET("/:id/status", campaignHandler.Status)
	campagnes.POST("", admin, campaignHandler.Create)
	campagnes.PUT("/:id", admin, campaignHandler.Update)
	campagnes.DELETE("/:id", admin, campaignHandler.Delete)
	campagnes.GET("/:id/export", admin, campaignHandler.Export)
	campagnes.GET("/:id/dossiers", admin, dossierHandler.ByCampaign)

	dossiers := secured.Group("/dossiers")
	dossiers.POST("", doctorant, dossierHandler.Submit)
	dossiers.GET("/me", doctorant, dossierHandler.Mine)
	dossiers.GET("/previous", doctorant, dossierHandler.Previous)
	dossiers.GET("/reinscription/status", doctorant, dossierHandler.ReenrollmentStatus)
	dossiers.GET("/directeur/pending", directeur, dossierHandler.PendingDirecteur)
	dossiers.GET("/admin/pending", admin, dossierHandler.PendingAdmin)
	dossiers.GET("/doctorants/:doctorantId/initial-date", dossierHandler.InitialDate)
	dossiers.GET("/:id", dossierHandler.Get)
	dossiers.POST("/:id/validation-directeur", directeur, dossierHandler.ValidateDirecteur)
	dossiers.POST("/:id/validation-admin", admin, dossierHandler.ValidateAdmin)
	dossiers.DELETE("/:id", admin, dossierHandler.Delete)

	secured.GET("/documents/:id/url", dossierHandler.DocumentURL)

	demandes := secured.Group("/demandes")
	demandes.POST("", doctorant, demandeHandler.Submit)
	demandes.GET("/me", doctorant, demandeHandler.Mine)
	demandes.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleDirecteur), demandeHandler.List)
	demandes.GET("/:id", demandeHandler.Get)
	demandes.POST("/:id/prerequis/validate", admin, demandeHandler.ValiderPrerequis)
	demandes.POST("/:id/jury", middleware.RequireRoles(models.RoleDirecteur, models.RoleAdmin), demandeHandler.ProposeJury)
	demandes.POST("/:id/rapports", admin, demandeHandler.UploadRapport)
	demandes.POST("/:id/autoriser", admin, demandeHandler.Autoriser)
	demandes.POST("/:id/planifier", admin, demandeHandler.Planifier)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Outbox.Enabled {
		relay := service.NewOutboxRelay(outboxRepo, producer, txRunner, service.OutboxRelayConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		}, metrics, logr)
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
