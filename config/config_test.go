package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("POSTGRES_USER", "payments")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "payments")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("PAYMENT_STORE", "")
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("MESSAGE_BROKER", "")
	t.Setenv("PAYMENT_REQUEST_QUEUE_URL", "http://localhost:4566/000000000000/payment_requests")
	t.Setenv("WORKER_ENABLED", "")
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("ORDER_SERVICE_TIMEOUT", "")
	t.Setenv("AWS_USE_SECRETS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("STRIPE_API_KEY", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.PaymentStore)
	assert.Equal(t, ProviderMock, cfg.PaymentProvider)
	assert.Equal(t, BrokerSQS, cfg.MessageBroker)
	assert.Equal(t, 10*time.Second, cfg.OrderServiceTimeout)
	assert.Equal(t, 1, cfg.WorkerConcurrency)
	assert.True(t, cfg.WorkerEnabled)
	assert.False(t, cfg.WorkerEmergencyFallback)
	assert.Equal(t, "brl", cfg.PaymentCurrency)
}

func TestLoadConfig_ProductionDefaultsToStripe(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_API_KEY")

	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, cfg.PaymentProvider)
}

func TestLoadConfig_MissingDatabase(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POSTGRES_PASSWORD", "")

	_, err := LoadConfig()
	assert.EqualError(t, err, "database config incomplete")
}

func TestLoadConfig_DynamoSkipsDatabase(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("PAYMENT_STORE", "dynamodb")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "payments", cfg.DynamoPaymentsTable)
}

func TestLoadConfig_KafkaRequiresBrokers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MESSAGE_BROKER", "kafka")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ORDER_SERVICE_TIMEOUT", "ten seconds")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDER_SERVICE_TIMEOUT")

	setBaseEnv(t)
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_CONCURRENCY")
}

func TestLoadConfig_WorkerDisabledNeedsNoQueue(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("PAYMENT_REQUEST_QUEUE_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.WorkerEnabled)
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestOverrideFromSecrets(t *testing.T) {
	cfg := &Config{Postgres: PostgresConfig{User: "env-user", Host: "env-host"}}
	overrideFromSecrets(context.Background(), cfg, fakeSecrets{
		"payments/DB_CREDENTIALS": `{"POSTGRES_USER":"sm-user","POSTGRES_PASSWORD":"sm-pass"}`,
		"payments/STRIPE_API_KEY": "sk_live_x",
	})

	assert.Equal(t, "sm-user", cfg.Postgres.User)
	assert.Equal(t, "sm-pass", cfg.Postgres.Password)
	assert.Equal(t, "env-host", cfg.Postgres.Host)
	assert.Equal(t, "sk_live_x", cfg.StripeSecretKey)
	assert.Empty(t, cfg.StripeWebhookKey)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DB: "payments", SSLMode: "disable", TimeZone: "UTC"}
	assert.Equal(t, "host=db user=u password=p dbname=payments port=5432 sslmode=disable TimeZone=UTC", p.DSN())
}
