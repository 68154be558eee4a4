package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
)

const (
	StorePostgres = "postgres"
	StoreDynamo   = "dynamodb"

	ProviderMock      = "mock"
	ProviderStripe    = "stripe"
	ProviderEmergency = "emergency"

	BrokerSQS   = "sqs"
	BrokerKafka = "kafka"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	TimeZone string
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		p.Host, p.User, p.Password, p.DB, p.Port, p.SSLMode, p.TimeZone,
	)
}

func (p PostgresConfig) complete() bool {
	return p.User != "" && p.Password != "" && p.DB != "" && p.Host != ""
}

// Config holds all configuration for the payments service.
type Config struct {
	Environment string
	Port        string

	Postgres            PostgresConfig
	PaymentStore        string
	DynamoPaymentsTable string

	PaymentProvider  string
	StripeSecretKey  string
	StripeWebhookKey string
	PaymentCurrency  string
	ProviderTimeout  time.Duration

	OrderServiceURL     string
	OrderServiceTimeout time.Duration

	MessageBroker             string
	PaymentRequestQueueURL    string // SQS queue URL for payment requests
	PaymentResponseQueueURL   string // SQS queue URL for payment responses
	PaymentSNSTopicARN        string // SNS topic ARN for payment responses
	KafkaBrokers              []string
	KafkaPaymentRequestTopic  string
	KafkaPaymentResponseTopic string
	KafkaGroupID              string

	WorkerEnabled           bool
	WorkerConcurrency       int
	WorkerMessageTimeout    time.Duration
	WorkerEmergencyFallback bool

	RedisURL     string
	OrderLockTTL time.Duration

	JWTSecret      string
	AllowedOrigins []string

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SecretGetter reads a named secret value.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// LoadConfig reads configuration from environment variables (and an optional
// .env file) with an optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8000"),
		Postgres: PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		PaymentStore:              strings.ToLower(getEnv("PAYMENT_STORE", StorePostgres)),
		DynamoPaymentsTable:       getEnv("DYNAMODB_PAYMENTS_TABLE", "payments"),
		StripeSecretKey:           os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:          os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:           strings.ToLower(getEnv("PAYMENT_CURRENCY", "brl")),
		ProviderTimeout:           getDuration("PROVIDER_TIMEOUT", 30*time.Second, &errs),
		OrderServiceURL:           strings.TrimSuffix(getEnv("SERVICE_ORDERS_URL", "http://host.docker.internal:8003"), "/"),
		OrderServiceTimeout:       getDuration("ORDER_SERVICE_TIMEOUT", 10*time.Second, &errs),
		MessageBroker:             strings.ToLower(getEnv("MESSAGE_BROKER", BrokerSQS)),
		PaymentRequestQueueURL:    os.Getenv("PAYMENT_REQUEST_QUEUE_URL"),
		PaymentResponseQueueURL:   os.Getenv("PAYMENT_RESPONSE_QUEUE_URL"),
		PaymentSNSTopicARN:        os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		KafkaBrokers:              splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaPaymentRequestTopic:  getEnv("KAFKA_PAYMENT_REQUEST_TOPIC", "payment_requests"),
		KafkaPaymentResponseTopic: getEnv("KAFKA_PAYMENT_RESPONSE_TOPIC", "payment_responses"),
		KafkaGroupID:              getEnv("KAFKA_GROUP_ID", "payments-service-group"),
		WorkerEnabled:             getBool("WORKER_ENABLED", true, &errs),
		WorkerConcurrency:         getInt("WORKER_CONCURRENCY", 1, &errs),
		WorkerMessageTimeout:      getDuration("WORKER_MESSAGE_TIMEOUT", 60*time.Second, &errs),
		WorkerEmergencyFallback:   getBool("WORKER_EMERGENCY_FALLBACK", false, &errs),
		RedisURL:                  os.Getenv("REDIS_URL"),
		OrderLockTTL:              getDuration("ORDER_LOCK_TTL", 2*time.Minute, &errs),
		JWTSecret:                 strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AllowedOrigins:            splitList(os.Getenv("ALLOWED_ORIGINS")),
		CloudWatchEnabled:         getBool("CLOUDWATCH_ENABLED", false, &errs),
		CloudWatchNamespace:       getEnv("CLOUDWATCH_NAMESPACE", "Payments"),
		CloudWatchLogGroup:        getEnv("CLOUDWATCH_LOG_GROUP", "/payments/service"),
	}

	defaultProvider := ProviderMock
	if cfg.IsProduction() {
		defaultProvider = ProviderStripe
	}
	cfg.PaymentProvider = strings.ToLower(getEnv("PAYMENT_PROVIDER", defaultProvider))

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx := context.Background()
		if awsCfg, err := aws_pkg.LoadAWSConfig(ctx); err == nil {
			overrideFromSecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromSecrets(ctx context.Context, cfg *Config, sm SecretGetter) {
	if dbjson, err := sm.GetSecret(ctx, "payments/DB_CREDENTIALS"); err == nil && dbjson != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(dbjson), &m); err == nil {
			if v, ok := m["POSTGRES_USER"]; ok && v != "" {
				cfg.Postgres.User = v
			}
			if v, ok := m["POSTGRES_PASSWORD"]; ok && v != "" {
				cfg.Postgres.Password = v
			}
			if v, ok := m["POSTGRES_DB"]; ok && v != "" {
				cfg.Postgres.DB = v
			}
			if v, ok := m["POSTGRES_HOST"]; ok && v != "" {
				cfg.Postgres.Host = v
			}
			if v, ok := m["POSTGRES_PORT"]; ok && v != "" {
				cfg.Postgres.Port = v
			}
		}
	}
	if v, err := sm.GetSecret(ctx, "payments/STRIPE_API_KEY"); err == nil && v != "" {
		cfg.StripeSecretKey = v
	}
	if v, err := sm.GetSecret(ctx, "payments/STRIPE_WEBHOOK_SECRET"); err == nil && v != "" {
		cfg.StripeWebhookKey = v
	}
}

// Validate checks that the selected store, provider and broker are usable.
func (c *Config) Validate() error {
	switch c.PaymentStore {
	case StorePostgres:
		if !c.Postgres.complete() {
			return fmt.Errorf("database config incomplete")
		}
	case StoreDynamo:
		if c.DynamoPaymentsTable == "" {
			return fmt.Errorf("DYNAMODB_PAYMENTS_TABLE not set")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_STORE %q", c.PaymentStore)
	}

	switch c.PaymentProvider {
	case ProviderMock, ProviderEmergency:
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_API_KEY is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}

	switch c.MessageBroker {
	case BrokerSQS:
		if c.WorkerEnabled && c.PaymentRequestQueueURL == "" {
			return fmt.Errorf("PAYMENT_REQUEST_QUEUE_URL is required when the worker is enabled")
		}
	case BrokerKafka:
		if c.WorkerEnabled && (len(c.KafkaBrokers) == 0 || c.KafkaPaymentRequestTopic == "") {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_PAYMENT_REQUEST_TOPIC are required when the worker is enabled")
		}
	default:
		return fmt.Errorf("unknown MESSAGE_BROKER %q", c.MessageBroker)
	}

	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}

func getInt(key string, fallback int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
