package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/config"
	"catalog-service/internal/api"
	"catalog-service/internal/broker"
	"catalog-service/internal/channel"
	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
	"catalog-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionSweepInterval = time.Minute

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog service")

	tp, err := util.InitTracer("catalog-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	policy, err := models.ParsePolicy(cfg.Catalog.DefaultPolicy)
	if err != nil {
		logger.Fatal("Invalid inventory policy", zap.Error(err))
	}
	apportion, err := channel.ParseApportionMode(cfg.Catalog.ApportionMode)
	if err != nil {
		logger.Fatal("Invalid apportion mode", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCatalog))

	eventPublisher := broker.NewEventPublisher(producer)

	schemaTTL := time.Duration(cfg.Catalog.SchemaCacheTTLSeconds) * time.Second
	catalogService := service.NewCatalogService(db, redisClient, schemaTTL)
	optionService := service.NewOptionService(db, redisClient, catalogService, eventPublisher)
	identifierService := service.NewIdentifierService(db, cfg.Catalog.IdentifierCodeLengths)
	assetService := service.NewAssetService(db, cfg.Catalog.AssetBaseURL)
	sessionService := service.NewSessionService(
		catalogService,
		db,
		assetService,
		identifierService,
		eventPublisher,
		service.SessionConfig{
			TTL:             time.Duration(cfg.Catalog.SessionTTLMinutes) * time.Minute,
			IdentifierDelay: time.Duration(cfg.Catalog.IdentifierDebounceMs) * time.Millisecond,
			CodeLengths:     identifierService.CodeLengths(),
			MinAssets:       cfg.Catalog.MinVariantAssets,
			DefaultPolicy:   policy,
			Apportion:       apportion,
		},
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go sessionService.RunSweeper(workerCtx, sessionSweepInterval)

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, cfg.Kafka.ConsumerGroup)
	cacheWorker := worker.NewSchemaCacheWorker(consumer, catalogService)
	go func() {
		if err := cacheWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Schema cache worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog:     catalogService,
		Options:     optionService,
		Identifiers: identifierService,
		Assets:      assetService,
		Sessions:    sessionService,
		Products:    service.NewProductService(db),
	}, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := cacheWorker.Stop(); err != nil {
		logger.Warn("Error stopping schema cache worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
