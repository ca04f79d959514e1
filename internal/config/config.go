package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort int `validate:"min=1,max=65535"`

	DBConfig struct {
		Host     string `validate:"required"`
		Port     int    `validate:"min=1,max=65535"`
		User     string `validate:"required"`
		Password string
		Name     string `validate:"required"`
		SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
	}

	KafkaBrokerURL             string `validate:"required"`
	KafkaPaymentEventsTopic    string `validate:"required"`
	KafkaCheckoutRequestsTopic string `validate:"required"`
	KafkaConsumerGroup         string `validate:"required"`

	OutboxPollInterval time.Duration `validate:"gt=0"`
	OutboxPollTimeout  time.Duration `validate:"gt=0"`

	Gateway GatewayConfig

	CORSAllowedOrigins []string
	RateLimitPerMinute int `validate:"min=0"`
	MigrationsPath     string `validate:"required"`
	LogLevel           string `validate:"oneof=debug info warn error"`
}

type GatewayConfig struct {
	BaseURL            string        `validate:"required,url"`
	APIKey             string        `validate:"required"`
	APISecret          string        `validate:"required,base64"`
	Timeout            time.Duration `validate:"gt=0"`
	IPNURL             string        `validate:"required,url"`
	ReturnSuccessURL   string        `validate:"required,url"`
	ReturnFailureURL   string        `validate:"required,url"`
	PaymentDescription string
	Email              bool
	AutoSell           bool
	InstantOnly        bool
	Debug              bool
}

var validate = validator.New()

// LoadConfig reads the environment, after merging a .env file when one is
// present, and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8082)

	cfg.DBConfig.Host = getEnvOrDefault("PAYMENTS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("PAYMENTS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("PAYMENTS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("PAYMENTS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("PAYMENTS_DB_NAME", "payments_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("PAYMENTS_DB_SSLMODE", "disable")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaPaymentEventsTopic = getEnvOrDefault("KAFKA_PAYMENT_EVENTS_TOPIC", "payment_events")
	cfg.KafkaCheckoutRequestsTopic = getEnvOrDefault("KAFKA_CHECKOUT_REQUESTS_TOPIC", "checkout_requests")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "merchantpay-group")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	cfg.Gateway.BaseURL = getEnvOrDefault("GATEWAY_BASE_URL", "https://data.mtgox.com")
	cfg.Gateway.APIKey = getEnvOrDefault("GATEWAY_API_KEY", "")
	cfg.Gateway.APISecret = getEnvOrDefault("GATEWAY_API_SECRET", "")
	cfg.Gateway.Timeout = getEnvAsDuration("GATEWAY_TIMEOUT", 45*time.Second)
	cfg.Gateway.IPNURL = getEnvOrDefault("GATEWAY_IPN_URL", "")
	cfg.Gateway.ReturnSuccessURL = getEnvOrDefault("GATEWAY_RETURN_SUCCESS_URL", "")
	cfg.Gateway.ReturnFailureURL = getEnvOrDefault("GATEWAY_RETURN_FAILURE_URL", "")
	cfg.Gateway.PaymentDescription = getEnvOrDefault("GATEWAY_PAYMENT_PAGE_DESCRIPTION", "Thank you for shopping with us.")
	cfg.Gateway.Email = getEnvAsBool("GATEWAY_EMAIL", false)
	cfg.Gateway.AutoSell = getEnvAsBool("GATEWAY_AUTO_SELL", false)
	cfg.Gateway.InstantOnly = getEnvAsBool("GATEWAY_INSTANT_ONLY", false)
	cfg.Gateway.Debug = getEnvAsBool("GATEWAY_DEBUG", false)

	cfg.CORSAllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"})
	cfg.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// EffectiveLogLevel is debug whenever gateway debugging is switched on.
func (c *Config) EffectiveLogLevel() string {
	if c.Gateway.Debug {
		return "debug"
	}
	return c.LogLevel
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
