package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	ServerPort  int
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string
	InitialCash decimal.Decimal
	Database    DatabaseConfig
	Quotes      QuotesConfig
	MQ          MQConfig
	Storage     StorageConfig
}

type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	UseSSL      bool
	Path        string
	AutoMigrate bool
}

// QuotesConfig selects and configures the price oracle.
type QuotesConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	PricesFile string
	Timeout    time.Duration
}

// MQConfig selects the broker used for trade events. An empty or "none"
// backend disables publishing.
type MQConfig struct {
	Backend       string
	TradesChannel string
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// StorageConfig selects the object store used for statement exports.
type StorageConfig struct {
	Backend  string
	LocalDir string
	Minio    MinioConfig
	GCS      GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Driver:      getEnv("DB_DRIVER", DriverPostgres),
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        getEnvInt("DB_PORT", 5432),
		User:        getEnv("DB_USER", "papertrade"),
		Password:    getEnv("DB_PASSWORD", "password"),
		DBName:      getEnv("DB_NAME", "papertrade"),
		UseSSL:      getEnvBool("DB_USE_SSL", false),
		Path:        getEnv("DB_PATH", "papertrade.db"),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
	}

	quotesConfig := QuotesConfig{
		Provider:   strings.ToLower(getEnv("QUOTES_PROVIDER", "iex")),
		BaseURL:    getEnv("QUOTES_BASE_URL", ""),
		APIKey:     getEnv("QUOTES_API_KEY", ""),
		PricesFile: getEnv("QUOTES_PRICES_FILE", "prices.yaml"),
		Timeout:    getEnvDuration("QUOTES_TIMEOUT", 8*time.Second),
	}

	mqConfig := MQConfig{
		Backend:       strings.ToLower(getEnv("MQ_BACKEND", "none")),
		TradesChannel: getEnv("TRADE_EVENTS_CHANNEL", "trades.executed"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
			QueueDurable:    getEnvBool("RABBITMQ_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_AUTO_DELETE", false),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", "none")),
		LocalDir: getEnv("STORAGE_LOCAL_DIR", "exports"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "papertrade"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort:  getEnvInt("SERVER_PORT", 8080),
		JWTSecret:   strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 24*time.Hour),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		InitialCash: getEnvDecimal("INITIAL_CASH", decimal.NewFromInt(10000)),
		Database:    dbConfig,
		Quotes:      quotesConfig,
		MQ:          mqConfig,
		Storage:     storageConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
		if err != nil || value.IsNegative() {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
