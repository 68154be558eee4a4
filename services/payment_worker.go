package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kauan1020/payments-microservice/messaging"
	"github.com/kauan1020/payments-microservice/models"
	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/repository"
	"go.uber.org/zap"
)

const (
	unusableResultMessage = "provider returned an unusable result"

	// outcomeWriteTimeout bounds the store write and response that follow a
	// charge. They run after the message deadline if it already expired.
	outcomeWriteTimeout = 10 * time.Second
)

// WorkerConfig tunes a PaymentWorker.
type WorkerConfig struct {
	ProviderTimeout time.Duration
	MessageTimeout  time.Duration
	// EmergencyFallback approves a charge with a synthetic transaction when the
	// provider returns an unusable result. Off means the payment is recorded as ERROR.
	EmergencyFallback bool
	Currency          string
}

// PaymentWorker executes charges for messages from the payment request channel.
// Every acknowledged message leaves the payment in a recorded status and
// publishes exactly one response.
type PaymentWorker struct {
	repo      repository.PaymentRepository
	provider  providers.PaymentProvider
	responses messaging.Publisher
	locker    OrderLocker
	metrics   *aws_pkg.MetricsClient
	cfg       WorkerConfig
	logger    *zap.Logger
}

func NewPaymentWorker(
	repo repository.PaymentRepository,
	provider providers.PaymentProvider,
	responses messaging.Publisher,
	locker OrderLocker,
	metrics *aws_pkg.MetricsClient,
	cfg WorkerConfig,
	logger *zap.Logger,
) *PaymentWorker {
	if locker == nil {
		locker = NewLocalOrderLocker()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	return &PaymentWorker{
		repo:      repo,
		provider:  provider,
		responses: responses,
		locker:    locker,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts concurrency consumer loops on source and blocks until they all
// stop. Context cancellation is a clean shutdown.
func (w *PaymentWorker) Run(ctx context.Context, source messaging.Source, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	w.logger.Info("Starting payment worker",
		zap.Int("concurrency", concurrency),
		zap.String("provider", w.provider.Name()),
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(consumer int) {
			defer wg.Done()
			err := source.Consume(ctx, w.HandleMessage)
			if err == nil || ctx.Err() != nil {
				return
			}
			w.logger.Error("Payment consumer stopped", zap.Int("consumer", consumer), zap.Error(err))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	w.logger.Info("Payment worker stopped")
	return errors.Join(errs...)
}

// HandleMessage processes one payment request and tells the transport whether
// to acknowledge it.
func (w *PaymentWorker) HandleMessage(ctx context.Context, body []byte) messaging.Outcome {
	start := time.Now()
	if w.cfg.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.MessageTimeout)
		defer cancel()
	}

	var req models.PaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.logger.Warn("Dropping undecodable payment request", zap.Error(err), zap.ByteString("payload", body))
		return messaging.Ack
	}
	if err := req.Validate(); err != nil {
		w.logger.Warn("Dropping invalid payment request", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return messaging.Ack
	}
	if req.RequestID == "" {
		req.RequestID = bodyRequestID(body)
	}

	release, acquired, err := w.locker.TryLock(ctx, req.OrderID)
	if err != nil {
		w.logger.Warn("Order lock unavailable", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return w.requeue(ctx)
	}
	if !acquired {
		w.logger.Info("Order already being processed", zap.Int64("order_id", req.OrderID))
		return w.requeue(ctx)
	}
	defer release()

	payment, proceed, outcome := w.claim(ctx, req)
	if !proceed {
		return outcome
	}

	outcome = w.process(ctx, payment)
	if outcome == messaging.Ack {
		_ = w.metrics.RecordCount(ctx, aws_pkg.MetricPaymentRequestsProcessed, nil)
		_ = w.metrics.RecordLatency(ctx, aws_pkg.MetricPaymentLatency, time.Since(start), nil)
	}
	return outcome
}

// claim stores the PROCESSING record for req. When the order already has a
// payment it decides from the stored record whether a charge may happen:
//   - an outcome with a transaction id, or an ERROR recorded for this same
//     request, is replayed without a charge;
//   - a PROCESSING record left by an interrupted attempt resumes that attempt;
//   - PENDING, or ERROR from an earlier request, starts a new attempt.
func (w *PaymentWorker) claim(ctx context.Context, req models.PaymentRequest) (*models.Payment, bool, messaging.Outcome) {
	fresh := models.NewPayment(req.OrderID, req.Amount, models.StatusProcessing, req.PaymentMethod)
	fresh.LastRequestID = req.RequestID
	stored, err := w.repo.Add(ctx, fresh)
	if err == nil {
		return stored, true, messaging.Ack
	}
	if !errors.Is(err, repository.ErrDuplicatePayment) {
		w.logger.Error("Failed to store payment", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return nil, false, w.requeue(ctx)
	}

	existing, err := w.repo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		w.logger.Error("Failed to load existing payment", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return nil, false, w.requeue(ctx)
	}

	if existing.Status.IsSettled() || existing.TransactionID != "" {
		w.logger.Info("Payment already has an outcome, replaying response",
			zap.Int64("order_id", existing.OrderID),
			zap.String("status", existing.Status.String()),
			zap.String("transaction_id", existing.TransactionID),
		)
		w.respond(ctx, existing)
		return nil, false, messaging.Ack
	}

	if existing.Status == models.StatusError && existing.LastRequestID == req.RequestID {
		w.logger.Info("Request already failed, replaying error",
			zap.Int64("order_id", existing.OrderID),
			zap.String("request_id", req.RequestID),
			zap.String("error_message", existing.ErrorMessage),
		)
		w.respond(ctx, existing)
		return nil, false, messaging.Ack
	}

	if existing.Status == models.StatusProcessing && existing.LastRequestID != "" {
		if existing.LastRequestID != req.RequestID {
			w.logger.Info("Resuming interrupted payment attempt",
				zap.Int64("order_id", existing.OrderID),
				zap.String("request_id", existing.LastRequestID),
			)
		}
		return existing, true, messaging.Ack
	}

	if err := existing.TransitionTo(models.StatusProcessing); err != nil {
		w.logger.Warn("Payment cannot be reprocessed", zap.Int64("order_id", existing.OrderID), zap.Error(err))
		w.respond(ctx, existing)
		return nil, false, messaging.Ack
	}
	if existing.PaymentMethod == "" {
		existing.PaymentMethod = req.PaymentMethod
	}
	existing.LastRequestID = req.RequestID
	updated, err := w.repo.Update(ctx, existing)
	if err != nil {
		w.logger.Error("Failed to mark payment processing", zap.Int64("order_id", existing.OrderID), zap.Error(err))
		return nil, false, w.requeue(ctx)
	}
	return updated, true, messaging.Ack
}

func (w *PaymentWorker) process(ctx context.Context, payment *models.Payment) messaging.Outcome {
	result, err := w.charge(ctx, payment)

	// The charge has happened or definitely failed; record it even when the
	// message deadline has passed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()

	if err != nil {
		w.logger.Warn("Charge failed",
			zap.Int64("order_id", payment.OrderID),
			zap.String("provider", w.provider.Name()),
			zap.Error(err),
		)
		return w.fail(ctx, payment, err.Error())
	}

	if !result.Usable() {
		if !w.cfg.EmergencyFallback {
			w.logger.Error("Provider returned an unusable result", zap.Int64("order_id", payment.OrderID))
			return w.fail(ctx, payment, unusableResultMessage)
		}
		result = providers.EmergencyApproval(payment.Amount, w.cfg.Currency)
		w.logger.Warn("Provider returned an unusable result, substituting emergency approval",
			zap.Int64("order_id", payment.OrderID),
			zap.String("transaction_id", result.TransactionID),
		)
	}

	if err := payment.AssignTransaction(result.TransactionID); err != nil {
		return w.fail(ctx, payment, err.Error())
	}
	if err := payment.TransitionTo(mapProviderStatus(result.Status)); err != nil {
		return w.fail(ctx, payment, err.Error())
	}

	updated, err := w.repo.Update(ctx, payment)
	if err != nil {
		w.logger.Error("Failed to record charge outcome",
			zap.Int64("order_id", payment.OrderID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return w.requeue(ctx)
	}

	w.logger.Info("Payment processed",
		zap.Int64("order_id", updated.OrderID),
		zap.String("status", updated.Status.String()),
		zap.String("transaction_id", updated.TransactionID),
	)
	switch updated.Status {
	case models.StatusApproved:
		_ = w.metrics.RecordCount(ctx, aws_pkg.MetricPaymentSucceeded, nil)
	case models.StatusRejected:
		_ = w.metrics.RecordCount(ctx, aws_pkg.MetricPaymentFailed, nil)
	}

	w.respond(ctx, updated)
	return messaging.Ack
}

// charge calls the provider under the provider timeout. A panicking provider
// is reported as an error.
func (w *PaymentWorker) charge(ctx context.Context, payment *models.Payment) (result *providers.TransactionResult, err error) {
	pctx, cancel := context.WithTimeout(ctx, w.cfg.ProviderTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("payment provider panicked: %v", r)
		}
	}()
	return w.provider.ProcessPayment(pctx, payment.OrderID, payment.Amount, payment.PaymentMethod, payment.LastRequestID)
}

// fail records payment as ERROR and acknowledges the message. A failed charge
// is never redelivered by the transport.
func (w *PaymentWorker) fail(ctx context.Context, payment *models.Payment, message string) messaging.Outcome {
	_ = w.metrics.RecordCount(ctx, aws_pkg.MetricPaymentErrors, nil)

	if err := payment.Fail(message); err != nil {
		w.logger.Error("Payment cannot move to ERROR", zap.Int64("order_id", payment.OrderID), zap.Error(err))
	} else if updated, err := w.repo.Update(ctx, payment); err != nil {
		w.logger.Error("Failed to record payment error",
			zap.Int64("order_id", payment.OrderID),
			zap.String("error_message", message),
			zap.Error(err),
		)
	} else {
		payment = updated
	}

	w.logger.Info("Payment processed",
		zap.Int64("order_id", payment.OrderID),
		zap.String("status", payment.Status.String()),
		zap.String("error_message", payment.ErrorMessage),
	)
	w.respond(ctx, payment)
	return messaging.Ack
}

// respond publishes the payment outcome. Publication failures are logged only:
// the outcome is already stored and a redelivery could charge twice.
func (w *PaymentWorker) respond(ctx context.Context, payment *models.Payment) {
	if w.responses == nil {
		return
	}
	key := strconv.FormatInt(payment.OrderID, 10)
	if err := messaging.PublishJSON(ctx, w.responses, key, models.ResponseFor(payment)); err != nil {
		w.logger.Warn("Failed to publish payment response",
			zap.Int64("order_id", payment.OrderID),
			zap.String("status", payment.Status.String()),
			zap.Error(err),
		)
	}
}

func (w *PaymentWorker) requeue(ctx context.Context) messaging.Outcome {
	_ = w.metrics.RecordCount(ctx, aws_pkg.MetricPaymentRequeued, nil)
	return messaging.Requeue
}

// bodyRequestID identifies a request published without a request id by its
// content, so transport redeliveries of the same message share it.
func bodyRequestID(body []byte) string {
	sum := sha256.Sum256(body)
	return "body-" + hex.EncodeToString(sum[:16])
}

// mapProviderStatus converts a provider token into the stored payment status.
func mapProviderStatus(status string) models.PaymentStatus {
	switch status {
	case providers.StatusApproved:
		return models.StatusApproved
	case providers.StatusPendingConfirmation:
		return models.StatusPending
	case providers.StatusRejected:
		return models.StatusRejected
	}
	return models.StatusProcessing
}
