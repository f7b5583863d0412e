package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// RabbitMQ
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string

	// JWT
	JWTSecret string

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
	S3UseSSL           string
	S3BucketName       string

	// Payment processor
	ProcessorBaseURL       string
	ProcessorSecretKey     string
	ProcessorWebhookSecret string
	ProcessorTimeout       time.Duration
	CheckoutSuccessURL     string
	CheckoutCancelURL      string

	// Loyalty policy
	PointPriceCents      int
	FreeClaimsPerQuarter int
	StatusBoostWindow    time.Duration
	RewardAccessTTL      time.Duration

	// Services URLs
	WalletServiceURL  string
	RewardServiceURL  string
	PaymentServiceURL string
	NotifyServiceURL  string
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	config := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "superfan"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:        getEnv("AWS_ENDPOINT", ""),
		S3UseSSL:           getEnv("S3_USE_SSL", "true"),
		S3BucketName:       getEnv("S3_BUCKET_NAME", "superfan-rewards"),

		ProcessorBaseURL:       getEnv("PROCESSOR_BASE_URL", "https://api.stripe.com"),
		ProcessorSecretKey:     getEnv("PROCESSOR_SECRET_KEY", ""),
		ProcessorWebhookSecret: getEnv("PROCESSOR_WEBHOOK_SECRET", ""),
		ProcessorTimeout:       getEnvDuration("PROCESSOR_TIMEOUT", 15*time.Second),
		CheckoutSuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:      getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),

		PointPriceCents:      getEnvInt("POINT_PRICE_CENTS", 1),
		FreeClaimsPerQuarter: getEnvInt("FREE_CLAIMS_PER_QUARTER", 1),
		StatusBoostWindow:    getEnvDuration("STATUS_BOOST_WINDOW", 90*24*time.Hour),
		RewardAccessTTL:      getEnvDuration("REWARD_ACCESS_TTL", 24*time.Hour),

		WalletServiceURL:  getEnv("WALLET_SERVICE_URL", "http://localhost:8001"),
		RewardServiceURL:  getEnv("REWARD_SERVICE_URL", "http://localhost:8002"),
		PaymentServiceURL: getEnv("PAYMENT_SERVICE_URL", "http://localhost:8003"),
		NotifyServiceURL:  getEnv("NOTIFY_SERVICE_URL", "http://localhost:8004"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
