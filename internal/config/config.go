package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Env string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	MySQLDSN string

	RedisHost string
	RedisPort int
	CacheTTL  time.Duration
	DedupTTL  time.Duration

	RabbitMQHost     string
	RabbitMQPort     int
	RabbitMQUser     string
	RabbitMQPassword string

	ConsulHost string
	ConsulPort int

	ProductServicePort int
	CartServicePort    int
	GatewayPort        int

	ConsumerWorkers  int
	ConsumerPrefetch int
	RPCTimeout       time.Duration

	OTELEndpoint string
}

// Load reads the environment. Every value falls back to the local
// docker-compose defaults.
func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "development"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "minisys"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "minisys123"),
		PostgresDB:       getEnv("POSTGRES_DB", "minisys"),

		MySQLDSN: getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/carts?parseTime=true"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnvInt("REDIS_PORT", 6379),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),
		DedupTTL:  getEnvDuration("DEDUP_TTL", 24*time.Hour),

		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnvInt("RABBITMQ_PORT", 5672),
		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),

		ConsulHost: getEnv("CONSUL_HOST", "localhost"),
		ConsulPort: getEnvInt("CONSUL_PORT", 8500),

		ProductServicePort: getEnvInt("PRODUCT_SERVICE_PORT", 8081),
		CartServicePort:    getEnvInt("CART_SERVICE_PORT", 8082),
		GatewayPort:        getEnvInt("GATEWAY_PORT", 8080),

		ConsumerWorkers:  getEnvInt("CONSUMER_WORKERS", 4),
		ConsumerPrefetch: getEnvInt("CONSUMER_PREFETCH", 10),
		RPCTimeout:       getEnvDuration("RPC_TIMEOUT", 5*time.Second),

		OTELEndpoint: os.Getenv("OTEL_ENDPOINT"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger builds a JSON logger in production and a console logger otherwise.
func NewLogger(cfg *Config, service string) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("service", service)), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
