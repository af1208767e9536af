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

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/discovery"
)

func main() {
	cfg := config.Load()

	logger, err := config.NewLogger(cfg, "api-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// K8s DNS names when Consul has nothing
	fallbacks := map[string]string{
		productService: fmt.Sprintf("http://%s:%d", productService, cfg.ProductServicePort),
		cartService:    fmt.Sprintf("http://%s:%d", cartService, cfg.CartServicePort),
	}

	var resolver ServiceResolver
	consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort, logger)
	if err != nil {
		logger.Warn("⚠️ Failed to connect to Consul, using K8s DNS", zap.Error(err))
	} else {
		resolver = consul
	}

	gateway := NewGateway(resolver, fallbacks, logger)
	go gateway.Watch(ctx, 10*time.Second)

	router := gin.Default()
	gateway.Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.GatewayPort),
		Handler: router,
	}

	go func() {
		logger.Info("🚀 API Gateway starting", zap.Int("port", cfg.GatewayPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("❌ API Gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Shutdown failed", zap.Error(err))
	}
}
