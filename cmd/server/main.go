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

	"bom-order-service/config"
	"bom-order-service/internal/api"
	"bom-order-service/internal/broker"
	"bom-order-service/internal/redisclient"
	"bom-order-service/internal/service"
	"bom-order-service/internal/store"
	"bom-order-service/internal/util"
	"bom-order-service/internal/vendor"
	"bom-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bom order service")

	tp, err := util.InitTracer("bom-order-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	registry := vendor.NewRegistry(
		vendor.NewDigikey(cfg.Vendor.DigikeyClientID, redisClient, vendor.WithBaseURL(cfg.Vendor.DigikeyBaseURL)),
	)

	resolver := service.NewResolver(db, registry,
		service.NewPropagator(cfg.Business.PropagateToOpenOrders),
		eventPublisher,
		service.ResolverConfig{
			FreshnessWindow:     cfg.Business.FreshnessWindow,
			QueryTimeout:        cfg.Vendor.QueryTimeout,
			PlaceholderImageURL: cfg.Business.PlaceholderImageURL,
		})
	bomService := service.NewBOMService(db, resolver, redisClient, eventPublisher, cfg.Business.ResolutionLockDuration)
	orderService := service.NewOrderService(db, redisClient, eventPublisher, cfg.Business.OrderIdempotencyTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	resolutionWorker := worker.NewResolutionWorker(consumer, bomService)
	go func() {
		if err := resolutionWorker.Start(workerCtx); err != nil {
			logger.Error("Resolution worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(bomService, orderService, registry, redisClient, map[string]api.Pinger{
		"database": db,
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
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := resolutionWorker.Stop(); err != nil {
		logger.Warn("Error stopping resolution worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
