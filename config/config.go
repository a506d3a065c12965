package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	LogLevel string `mapstructure:"LOG_LEVEL"` // e.g., "debug", "info", "warn", "error"

	// HTTP server
	HTTPPort   string `mapstructure:"HTTP_PORT"`
	AdminToken string `mapstructure:"ADMIN_TOKEN"` // token expected on admin routes

	// Storage driver: "memory" for local runs and tests, "postgres" otherwise
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	// PostgreSQL configuration
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSL_MODE"` // "disable", "require", "verify-full"

	// Redis, used for the processed-transaction idempotency set.
	// Empty URL falls back to the in-memory set.
	RedisURL string `mapstructure:"REDIS_URL"`

	// RabbitMQ configuration. Empty URL disables the event bus (nop publisher,
	// no fulfillment consumer).
	RabbitMQURL           string        `mapstructure:"RABBITMQ_URL"`
	IncomingExchangeName  string        `mapstructure:"INCOMING_EXCHANGE_NAME"`
	IncomingQueueName     string        `mapstructure:"INCOMING_QUEUE_NAME"`
	IncomingRoutingKey    string        `mapstructure:"INCOMING_ROUTING_KEY"`
	OutgoingExchangeName  string        `mapstructure:"OUTGOING_EXCHANGE_NAME"`
	ConsumerTag           string        `mapstructure:"CONSUMER_TAG"`
	ReconnectDelay        time.Duration `mapstructure:"RECONNECT_DELAY"`
	MaxReconnectAttempts  int           `mapstructure:"MAX_RECONNECT_ATTEMPTS"`
	RabbitMQPrefetchCount int           `mapstructure:"RABBITMQ_PREFETCH_COUNT"`
	RabbitMQExchangeType  string        `mapstructure:"RABBITMQ_EXCHANGE_TYPE"` // e.g., "direct", "topic", "fanout"
	DLXName               string        `mapstructure:"DLX_NAME"`
	DLQRoutingKey         string        `mapstructure:"DLQ_ROUTING_KEY"`
	MaxProcessingRetries  int           `mapstructure:"MAX_PROCESSING_RETRIES"`

	// Payment gateway
	StorePassword string `mapstructure:"SSLCZ_STORE_PASSWORD"`

	// Reservation lifecycle
	ReservationTTL time.Duration `mapstructure:"RESERVATION_TTL"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// Dashboard
	LowStockThreshold int `mapstructure:"LOW_STOCK_THRESHOLD"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("APP_NAME", "agribasket-ledger")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("ADMIN_TOKEN", "")

	viper.SetDefault("STORE_DRIVER", "postgres")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "agribasket")
	viper.SetDefault("DB_PASSWORD", "agribasket")
	viper.SetDefault("DB_NAME", "agribasket_ledger")
	viper.SetDefault("DB_SSL_MODE", "disable")

	viper.SetDefault("REDIS_URL", "")

	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("INCOMING_EXCHANGE_NAME", "events.logistics")
	viper.SetDefault("INCOMING_QUEUE_NAME", "shipment_events_queue")
	viper.SetDefault("INCOMING_ROUTING_KEY", "shipment.confirmed")
	viper.SetDefault("OUTGOING_EXCHANGE_NAME", "events.ledger")
	viper.SetDefault("RABBITMQ_EXCHANGE_TYPE", "topic")
	viper.SetDefault("CONSUMER_TAG", "ledger-fulfillment-consumer")
	viper.SetDefault("RECONNECT_DELAY", 5*time.Second)
	viper.SetDefault("MAX_RECONNECT_ATTEMPTS", 5)
	viper.SetDefault("RABBITMQ_PREFETCH_COUNT", 10)
	viper.SetDefault("DLX_NAME", "dlx.shipment_events")
	viper.SetDefault("DLQ_ROUTING_KEY", "dlq.shipment_events_queue")
	viper.SetDefault("MAX_PROCESSING_RETRIES", 3)

	viper.SetDefault("SSLCZ_STORE_PASSWORD", "")

	viper.SetDefault("RESERVATION_TTL", 30*time.Minute)
	viper.SetDefault("SWEEP_INTERVAL", time.Minute)

	viper.SetDefault("LOW_STOCK_THRESHOLD", 5)

	// If a config file is found, read it in.
	if err = viper.ReadInConfig(); err == nil {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		log.Info().Msg("No config file found, using environment variables and defaults.")
		err = nil
	} else {
		log.Error().Err(err).Msg("Error reading config file")
		return
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = viper.Unmarshal(&config)
	return
}
