package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Booking  BookingConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	AutoMigrate  bool
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
	// GatewayTopic carries settled payments from upstream gateways; empty disables the consumer.
	GatewayTopic string
	GroupID      string
}

type TopicConfig struct {
	BookingStatus string
	Quote         string
	Payment       string
	Receipt       string
}

// All returns every topic the service publishes to.
func (t TopicConfig) All() []string {
	return []string{t.BookingStatus, t.Quote, t.Payment, t.Receipt}
}

type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	JWTSecret    string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type BookingConfig struct {
	LockTTL          time.Duration
	SweepInterval    time.Duration
	PlansFile        string
	DefaultCurrency  string
	IdentityCacheTTL time.Duration
	ReceiptQRSecret  string
	ReceiptFontPath  string
}

// LoadDotEnv loads .env when present. It reports whether a file was read.
func LoadDotEnv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			AutoMigrate:  getEnvBool("AUTO_MIGRATE", true),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingStatus: getEnv("KAFKA_TOPIC_BOOKING_STATUS", "wedding.booking.status"),
				Quote:         getEnv("KAFKA_TOPIC_QUOTE", "wedding.quote"),
				Payment:       getEnv("KAFKA_TOPIC_PAYMENT", "wedding.payment"),
				Receipt:       getEnv("KAFKA_TOPIC_RECEIPT", "wedding.receipt"),
			},
			GatewayTopic: getEnv("KAFKA_TOPIC_PAYMENT_GATEWAY", "wedding.payment.gateway"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "booking-service"),
		},
		Auth: AuthConfig{
			OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
			OIDCClientID: getEnv("OIDC_CLIENT_ID", "booking-service"),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Booking: BookingConfig{
			LockTTL:          time.Duration(getEnvInt("BOOKING_LOCK_TTL_SECONDS", 10)) * time.Second,
			SweepInterval:    time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 15)) * time.Minute,
			PlansFile:        getEnv("PLANS_FILE", "config/plans.yaml"),
			DefaultCurrency:  strings.ToUpper(getEnv("DEFAULT_CURRENCY", "PHP")),
			IdentityCacheTTL: time.Duration(getEnvInt("IDENTITY_CACHE_TTL_MINUTES", 10)) * time.Minute,
			ReceiptQRSecret:  getEnv("RECEIPT_QR_SECRET", ""),
			ReceiptFontPath:  getEnv("RECEIPT_FONT_PATH", "./fonts/DejaVuSans.ttf"),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
