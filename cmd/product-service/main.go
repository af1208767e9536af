package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/db"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/observability"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/rpc"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

const serviceName = "product-service"

func main() {
	cfg := config.Load()

	logger, err := config.NewLogger(cfg, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("❌ product-service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTELEndpoint, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(cfg.RedisHost, cfg.RedisPort, cfg.CacheTTL, cfg.DedupTTL, logger)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitMQHost, cfg.RabbitMQPort, cfg.RabbitMQUser, cfg.RabbitMQPassword, logger)
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	if err := rabbitMQ.SetupCartEventTopology(); err != nil {
		return err
	}
	if err := rabbitMQ.DeclareQueue(messaging.QueueProductRPC); err != nil {
		return err
	}
	if err := rabbitMQ.Qos(cfg.ConsumerPrefetch); err != nil {
		return err
	}

	// Create repositories and service
	productRepo := db.NewProductRepository(database)
	cachedRepo := db.NewCachedProductRepository(productRepo, redisCache, logger)
	productService := service.NewProductService(cachedRepo, service.DefaultRetryPolicy(), logger)

	// Start event consumer
	events, err := rabbitMQ.Consume(messaging.QueueCartEvents)
	if err != nil {
		return err
	}
	cartConsumer := consumer.NewCartEventConsumer(productService, rabbitMQ, redisCache, logger)
	go cartConsumer.Run(ctx, events, cfg.ConsumerWorkers)

	// Start request/reply bridge
	requests, err := rabbitMQ.Consume(messaging.QueueProductRPC)
	if err != nil {
		return err
	}
	bridge := rpc.NewBridge(rabbitMQ, logger)
	rpc.RegisterProductHandlers(bridge, productService)
	go bridge.Serve(ctx, requests, cfg.ConsumerWorkers)

	// Register with Consul
	consul := registerWithConsul(cfg, logger)

	// Setup router
	router := gin.Default()
	handlers.NewProductHandler(productService).Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ProductServicePort),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 product-service starting", zap.Int("port", cfg.ProductServicePort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-errCh:
		return err
	}

	if consul != nil {
		consul.Deregister(serviceID(cfg))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serviceID(cfg *config.Config) string {
	return fmt.Sprintf("%s-%d", serviceName, cfg.ProductServicePort)
}

// registerWithConsul keeps the service running without discovery when
// Consul is down; the gateway falls back to DNS names.
func registerWithConsul(cfg *config.Config, logger *zap.Logger) *discovery.ConsulClient {
	consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort, logger)
	if err != nil {
		logger.Warn("⚠️ Consul unavailable, skipping registration", zap.Error(err))
		return nil
	}

	err = consul.Register(discovery.ServiceConfig{
		Name: serviceName,
		ID:   serviceID(cfg),
		Port: cfg.ProductServicePort,
		Tags: []string{"api", "products", "rpc"},
	})
	if err != nil {
		logger.Warn("⚠️ Failed to register service", zap.Error(err))
		return nil
	}
	return consul
}
