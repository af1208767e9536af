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

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/client"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/db"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/observability"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

const serviceName = "cart-service"

func main() {
	cfg := config.Load()

	logger, err := config.NewLogger(cfg, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("❌ cart-service stopped", zap.Error(err))
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

	// Connect to MySQL
	database, err := db.NewMySQLDB(cfg.MySQLDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitMQHost, cfg.RabbitMQPort, cfg.RabbitMQUser, cfg.RabbitMQPassword, logger)
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	if err := rabbitMQ.DeclareExchange(messaging.ExchangeCartEvents); err != nil {
		return err
	}
	if err := rabbitMQ.DeclareQueue(messaging.QueueProductRPC); err != nil {
		return err
	}

	// Product Service client (request/reply over RabbitMQ)
	replies, err := rabbitMQ.ConsumeReplies()
	if err != nil {
		return err
	}
	productClient := client.NewProductClient(rabbitMQ, cfg.RPCTimeout, logger)
	go productClient.Listen(ctx, replies)

	// Create publisher, repository and service
	eventPublisher := publisher.NewCartEventPublisher(rabbitMQ, logger)
	cartRepo := db.NewCartRepository(database)
	cartService := service.NewCartService(cartRepo, productClient, eventPublisher, logger)

	consul := registerWithConsul(cfg, logger)

	// Setup router
	router := gin.Default()
	handlers.NewCartHandler(cartService).Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.CartServicePort),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 cart-service starting", zap.Int("port", cfg.CartServicePort))
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
	return fmt.Sprintf("%s-%d", serviceName, cfg.CartServicePort)
}

func registerWithConsul(cfg *config.Config, logger *zap.Logger) *discovery.ConsulClient {
	consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort, logger)
	if err != nil {
		logger.Warn("⚠️ Consul unavailable, skipping registration", zap.Error(err))
		return nil
	}

	err = consul.Register(discovery.ServiceConfig{
		Name: serviceName,
		ID:   serviceID(cfg),
		Port: cfg.CartServicePort,
		Tags: []string{"api", "carts"},
	})
	if err != nil {
		logger.Warn("⚠️ Failed to register service", zap.Error(err))
		return nil
	}
	return consul
}
