package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DefaultEndpoint is the public sandbox websocket feed.
const DefaultEndpoint = "wss://ws-feed-public.sandbox.exchange.coinbase.com"

// Config holds configuration for all commands
type Config struct {
	// Service name, set by the caller rather than the environment
	ServiceName string

	GRPCPort int    `env:"PORT_GRPC" envDefault:"50051" validate:"min=1,max=65535"`
	HTTPPort int    `env:"PORT_HTTP" envDefault:"8080"  validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	// Feed session
	FeedEndpoint     string        `env:"FEED_ENDPOINT"          envDefault:"wss://ws-feed-public.sandbox.exchange.coinbase.com" validate:"required,url"`
	FeedChannel      string        `env:"FEED_CHANNEL"           envDefault:"full"                                         validate:"required"`
	FeedProductIDs   []string      `env:"FEED_PRODUCT_IDS"       envDefault:"BTC-USD" envSeparator:","                     validate:"min=1,dive,required"`
	FeedPlanPath     string        `env:"FEED_PLAN"`
	HandshakeTimeout time.Duration `env:"FEED_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	ReadTimeout      time.Duration `env:"FEED_READ_TIMEOUT"      envDefault:"90s"`
	MaxDialAttempts  int           `env:"FEED_MAX_DIAL_ATTEMPTS" envDefault:"5" validate:"min=1"`

	// Statistics
	StatsOutput string `env:"STATS_OUTPUT"  envDefault:"stat.csv"`
	StatsEvery  uint64 `env:"STATS_EVERY"   envDefault:"10000" validate:"min=1"`
	StatsDBPath string `env:"STATS_DB_PATH" envDefault:"data/feed.db"`

	// Kafka brokers; empty disables the Kafka sink
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Redis fan-out; empty address disables it
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0" validate:"min=0"`
}

// LoadConfig loads configuration from an optional .env file and the
// environment, then validates it.
func LoadConfig(serviceName string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{ServiceName: serviceName}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// KafkaEnabled reports whether any broker was configured
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RedisEnabled reports whether a Redis address was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
