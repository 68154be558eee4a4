package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/config"
	"github.com/kauan1020/payments-microservice/controllers"
	"github.com/kauan1020/payments-microservice/database"
	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/kauan1020/payments-microservice/messaging"
	"github.com/kauan1020/payments-microservice/models"
	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
	"github.com/kauan1020/payments-microservice/pkg/logger"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/repository"
	"github.com/kauan1020/payments-microservice/routes"
	"github.com/kauan1020/payments-microservice/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	serviceName = "payments-service"

	// sqsVisibilityMargin covers the outcome write and response that follow
	// the message deadline.
	sqsVisibilityMargin = 30 * time.Second
)

// channels holds the broker endpoints the service and the worker talk through.
type channels struct {
	requestSource    messaging.Source
	requestPublisher messaging.Publisher
	responses        messaging.Publisher
	closers          []io.Closer
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	var cwWriter io.Writer
	var cwErr error
	if cfg.CloudWatchEnabled && awsErr == nil {
		cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			cwErr = err
		} else {
			cwWriter = cw
		}
	}

	zapLogger, err := logger.New(cfg.Environment, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, AWS integrations disabled", zap.Error(awsErr))
	}
	if cwErr != nil {
		zapLogger.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(cwErr))
	}

	var metrics *aws_pkg.MetricsClient
	if awsErr == nil {
		metrics = aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	repo, db := buildRepository(ctx, cfg, awsCfg, awsErr, zapLogger)
	if db != nil {
		defer database.Close(db) //nolint:errcheck
	}

	provider, err := providers.New(cfg.PaymentProvider, cfg.StripeSecretKey, cfg.PaymentCurrency, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init payment provider", zap.Error(err))
	}

	orderGateway := gateways.NewHTTPOrderGateway(cfg.OrderServiceURL, cfg.OrderServiceTimeout)

	ch := buildChannels(cfg, awsCfg, awsErr, zapLogger)
	defer func() {
		for _, c := range ch.closers {
			if err := c.Close(); err != nil {
				zapLogger.Warn("Failed to close publisher", zap.Error(err))
			}
		}
	}()

	paymentService := services.NewPaymentService(
		repo,
		orderGateway,
		provider,
		ch.requestPublisher,
		metrics,
		cfg.ProviderTimeout,
		zapLogger,
	)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan struct{})

	if cfg.WorkerEnabled && ch.requestSource != nil {
		locker := buildOrderLocker(ctx, cfg, zapLogger)
		worker := services.NewPaymentWorker(
			repo,
			provider,
			ch.responses,
			locker,
			metrics,
			services.WorkerConfig{
				ProviderTimeout:   cfg.ProviderTimeout,
				MessageTimeout:    cfg.WorkerMessageTimeout,
				EmergencyFallback: cfg.WorkerEmergencyFallback,
				Currency:          cfg.PaymentCurrency,
			},
			zapLogger,
		)
		go func() {
			defer close(workerDone)
			zapLogger.Info("Payment worker started",
				zap.String("broker", cfg.MessageBroker),
				zap.Int("concurrency", cfg.WorkerConcurrency),
			)
			if err := worker.Run(workerCtx, ch.requestSource, cfg.WorkerConcurrency); err != nil {
				zapLogger.Error("Payment worker stopped", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
		zapLogger.Info("Payment worker disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	paymentController := controllers.NewPaymentController(paymentService, zapLogger)

	var stripeController *controllers.StripeWebhookController
	if cfg.StripeWebhookKey != "" {
		stripeController = controllers.NewStripeWebhookController(
			paymentService,
			providers.NewStripeWebhookParser(cfg.StripeWebhookKey),
			zapLogger,
		)
	}

	r := routes.NewRouter(routes.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: 30 * time.Second,
		RatePerMinute:  100,
		RateBurst:      20,
	}, paymentController, stripeController, metrics, zapLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Payments service started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.PaymentStore),
		zap.String("provider", provider.Name()),
	)
	<-quit
	zapLogger.Info("Shutting down payments service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(cfg.WorkerMessageTimeout):
		zapLogger.Warn("Payment worker did not stop in time")
	}
	zapLogger.Info("Server exited cleanly")
}

func buildRepository(ctx context.Context, cfg *config.Config, awsCfg aws.Config, awsErr error, logger *zap.Logger) (repository.PaymentRepository, *gorm.DB) {
	switch cfg.PaymentStore {
	case config.StoreDynamo:
		if awsErr != nil {
			logger.Fatal("DynamoDB payment store requires AWS config", zap.Error(awsErr))
		}
		logger.Info("Using DynamoDB payment store", zap.String("table", cfg.DynamoPaymentsTable))
		return repository.NewDynamoPaymentRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoPaymentsTable), nil
	default:
		db, err := database.ConnectPostgres(ctx, cfg.Postgres, logger, &models.Payment{})
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		return repository.NewGormPaymentRepo(db), db
	}
}

func buildChannels(cfg *config.Config, awsCfg aws.Config, awsErr error, logger *zap.Logger) channels {
	var ch channels

	switch cfg.MessageBroker {
	case config.BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			logger.Warn("No Kafka brokers configured, payment channels disabled")
			return ch
		}
		ch.requestSource = messaging.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaPaymentRequestTopic, cfg.KafkaGroupID, logger)

		requests := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentRequestTopic)
		responses := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentResponseTopic)
		ch.requestPublisher = requests
		ch.responses = responses
		ch.closers = append(ch.closers, requests, responses)

	default:
		if awsErr != nil {
			if cfg.WorkerEnabled {
				logger.Fatal("SQS payment channels require AWS config", zap.Error(awsErr))
			}
			return ch
		}

		if cfg.PaymentRequestQueueURL != "" {
			requestQueue := aws_pkg.NewSQSConsumer(awsCfg, cfg.PaymentRequestQueueURL, logger)
			requestQueue.HoldWhileProcessing(workerProcessingTime(cfg), sqsVisibilityMargin)
			ch.requestSource = messaging.NewSQSSource(requestQueue)
			ch.requestPublisher = messaging.NewSQSPublisher(requestQueue)
		}

		var responses []messaging.Publisher
		if cfg.PaymentResponseQueueURL != "" {
			responseQueue := aws_pkg.NewSQSConsumer(awsCfg, cfg.PaymentResponseQueueURL, logger)
			responses = append(responses, messaging.NewSQSPublisher(responseQueue))
		}
		if cfg.PaymentSNSTopicARN != "" {
			responses = append(responses, messaging.NewSNSPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.PaymentSNSTopicARN))
		}
		ch.responses = messaging.NewMultiPublisher(responses...)
	}

	if ch.responses == nil {
		logger.Warn("No payment response channel configured, worker responses will be dropped")
	}
	return ch
}

// workerProcessingTime is the longest one payment request can occupy a consumer.
func workerProcessingTime(cfg *config.Config) time.Duration {
	if cfg.WorkerMessageTimeout > 0 {
		return cfg.WorkerMessageTimeout
	}
	return 2 * cfg.ProviderTimeout
}

func buildOrderLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) services.OrderLocker {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-process order locks")
		return services.NewLocalOrderLocker()
	}
	client, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-process order locks", zap.Error(err))
		return services.NewLocalOrderLocker()
	}
	return services.NewRedisOrderLocker(client, cfg.OrderLockTTL, logger)
}
