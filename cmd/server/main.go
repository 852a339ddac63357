package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/catalog"
	"storefront/internal/filestore"
	"storefront/internal/payment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

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
	logger.Info("Starting storefront")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
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

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	var files service.Files
	s3, err := filestore.New(context.Background(), filestore.Config{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		logger.Warn("File storage disabled", zap.Error(err))
	} else {
		files = s3
	}

	gateway := newGateway(cfg.Payment)

	codec := catalog.NewCodec(cfg.Catalog.PriceCeiling)
	catalogService := service.NewCatalogService(db, redisClient, codec, service.CatalogOptions{
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		CacheTTL:        cfg.Catalog.CacheTTL,
		Timeout:         cfg.Server.RequestTimeout,
	})
	checkoutService := service.NewCheckoutService(db, redisClient, gateway, eventPublisher, service.CheckoutOptions{
		LockTTL:        cfg.Checkout.LockTTL,
		PersistRetries: cfg.Checkout.PersistRetries,
		RetryBackoff:   cfg.Checkout.RetryBackoff,
		PersistTimeout: cfg.Server.RequestTimeout,
	})

	services := api.Services{
		Catalog:   catalogService,
		Cart:      service.NewCartService(db),
		Wishlist:  service.NewWishlistService(db),
		Checkout:  checkoutService,
		Orders:    service.NewOrderService(db, eventPublisher),
		Downloads: service.NewDownloadService(db, files, eventPublisher, cfg.Storage.DownloadExpiry),
		Admin:     service.NewAdminService(db, redisClient, files, eventPublisher),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	eventWorker := worker.NewEventWorker(consumer, redisClient, db)
	go func() {
		if err := eventWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.Options{
		Tokens:         auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		WebhookSecret:  cfg.Payment.WebhookSecret,
		RatePerSecond:  cfg.Server.RatePerSecond,
		RateBurst:      cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		},
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
	if err := eventWorker.Stop(); err != nil {
		logger.Warn("Error stopping event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newGateway(cfg config.PaymentConfig) payment.Gateway {
	switch cfg.Provider {
	case "hosted":
		return payment.NewHosted(cfg.HostedCheckoutURL)
	default:
		return payment.NewSimulated(cfg.SimulatedLatency, cfg.SimulatedSuccessRate)
	}
}
