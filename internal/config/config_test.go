package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.PostgresHost != "localhost" || cfg.PostgresPort != 5432 {
		t.Errorf("unexpected postgres defaults: %s:%d", cfg.PostgresHost, cfg.PostgresPort)
	}
	if cfg.ProductServicePort != 8081 || cfg.CartServicePort != 8082 || cfg.GatewayPort != 8080 {
		t.Errorf("unexpected service ports: %d %d %d", cfg.ProductServicePort, cfg.CartServicePort, cfg.GatewayPort)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m cache ttl, got %s", cfg.CacheTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RABBITMQ_HOST", "rabbit")
	t.Setenv("CONSUMER_WORKERS", "8")
	t.Setenv("RPC_TIMEOUT", "250ms")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg := Load()

	if cfg.RabbitMQHost != "rabbit" {
		t.Errorf("expected rabbit, got %s", cfg.RabbitMQHost)
	}
	if cfg.ConsumerWorkers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.ConsumerWorkers)
	}
	if cfg.RPCTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.RPCTimeout)
	}
	if cfg.RedisPort != 6379 {
		t.Errorf("expected fallback 6379 on bad input, got %d", cfg.RedisPort)
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg := Load()
	if !cfg.IsProduction() {
		t.Fatal("expected production env")
	}

	logger, err := NewLogger(cfg, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
}
