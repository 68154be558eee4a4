package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/kauan1020/payments-microservice/messaging"
	"github.com/kauan1020/payments-microservice/models"
	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService defines the synchronous payment operations behind the HTTP API.
type PaymentService interface {
	CreatePayment(ctx context.Context, orderID int64, paymentMethod string) (*models.Payment, *ServiceError)
	GetPaymentStatus(ctx context.Context, orderID int64) (models.PaymentStatus, *ServiceError)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status string) (*models.Payment, *ServiceError)
	RefundPayment(ctx context.Context, orderID int64, amount *decimal.Decimal) (*RefundOutcome, *ServiceError)
}

// RefundOutcome pairs the payment after a refund attempt with the provider's answer.
type RefundOutcome struct {
	Payment *models.Payment
	Refund  *providers.RefundResult
}

type paymentServiceImpl struct {
	repo            repository.PaymentRepository
	orders          gateways.OrderGateway
	provider        providers.PaymentProvider
	requests        messaging.Publisher
	metrics         *aws_pkg.MetricsClient
	providerTimeout time.Duration
	logger          *zap.Logger
}

// NewPaymentService creates a new PaymentService. requests may be nil, in
// which case created payments are not enqueued for processing.
func NewPaymentService(
	repo repository.PaymentRepository,
	orders gateways.OrderGateway,
	provider providers.PaymentProvider,
	requests messaging.Publisher,
	metrics *aws_pkg.MetricsClient,
	providerTimeout time.Duration,
	logger *zap.Logger,
) PaymentService {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &paymentServiceImpl{
		repo:            repo,
		orders:          orders,
		provider:        provider,
		requests:        requests,
		metrics:         metrics,
		providerTimeout: providerTimeout,
		logger:          logger,
	}
}

// CreatePayment resolves the order total and stores a PENDING payment for it.
// The charge itself is left to the payment worker.
func (s *paymentServiceImpl) CreatePayment(ctx context.Context, orderID int64, paymentMethod string) (*models.Payment, *ServiceError) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("Order lookup failed", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, newServiceError(err)
	}
	if order.TotalPrice == nil || !order.TotalPrice.IsPositive() {
		return nil, newServiceError(fmt.Errorf("%w: order %d", ErrInvalidOrder, orderID))
	}

	payment := models.NewPayment(orderID, *order.TotalPrice, models.StatusPending, paymentMethod)
	stored, err := s.repo.Add(ctx, payment)
	if err != nil {
		s.logger.Error("Failed to store payment", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, newServiceError(err)
	}

	s.logger.Info("Payment created",
		zap.Int64("order_id", stored.OrderID),
		zap.String("amount", stored.Amount.StringFixed(2)),
	)
	_ = s.metrics.RecordCount(ctx, aws_pkg.MetricPaymentsCreated, nil)

	s.enqueue(ctx, stored)
	return stored, nil
}

// enqueue hands the payment to the worker. Failures leave the payment PENDING.
func (s *paymentServiceImpl) enqueue(ctx context.Context, p *models.Payment) {
	if s.requests == nil {
		return
	}
	req := models.PaymentRequest{
		RequestID:     uuid.NewString(),
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		PaymentMethod: p.PaymentMethod,
	}
	if err := messaging.PublishJSON(ctx, s.requests, strconv.FormatInt(p.OrderID, 10), req); err != nil {
		s.logger.Warn("Failed to enqueue payment request", zap.Int64("order_id", p.OrderID), zap.Error(err))
	}
}

func (s *paymentServiceImpl) GetPaymentStatus(ctx context.Context, orderID int64) (models.PaymentStatus, *ServiceError) {
	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", newServiceError(err)
	}
	return payment.Status, nil
}

// UpdatePaymentStatus applies an externally reported status. The status token
// is validated before the store is touched.
func (s *paymentServiceImpl) UpdatePaymentStatus(ctx context.Context, orderID int64, status string) (*models.Payment, *ServiceError) {
	next, err := models.ParsePaymentStatus(status)
	if err != nil {
		return nil, newServiceError(err)
	}

	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, newServiceError(err)
	}
	if payment.Status == next {
		return payment, nil
	}

	previous := payment.Status
	if err := payment.TransitionTo(next); err != nil {
		return nil, newServiceError(err)
	}
	updated, err := s.repo.Update(ctx, payment)
	if err != nil {
		s.logger.Error("Failed to update payment status", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, newServiceError(err)
	}

	s.logger.Info("Payment status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", previous.String()),
		zap.String("to", next.String()),
	)
	return updated, nil
}

// RefundPayment refunds an approved payment, fully when amount is nil.
func (s *paymentServiceImpl) RefundPayment(ctx context.Context, orderID int64, amount *decimal.Decimal) (*RefundOutcome, *ServiceError) {
	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, newServiceError(err)
	}
	if payment.Status != models.StatusApproved || payment.TransactionID == "" {
		return nil, newServiceError(fmt.Errorf("%w: order %d is %s", ErrRefundNotAllowed, orderID, payment.Status))
	}
	if amount != nil && (!amount.IsPositive() || amount.GreaterThan(payment.Amount)) {
		return nil, newServiceError(fmt.Errorf("%w: %s", ErrInvalidRefundAmount, amount.String()))
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	refund, err := s.provider.RefundPayment(pctx, payment.TransactionID, amount)
	if err != nil {
		s.logger.Error("Refund failed",
			zap.Int64("order_id", orderID),
			zap.String("provider", s.provider.Name()),
			zap.Error(err),
		)
		return nil, newServiceError(fmt.Errorf("%w: %w", ErrProviderError, err))
	}

	if refund.Status == providers.RefundSucceeded {
		if err := payment.TransitionTo(models.StatusRefunded); err != nil {
			return nil, newServiceError(err)
		}
		if payment, err = s.repo.Update(ctx, payment); err != nil {
			s.logger.Error("Refund succeeded but payment update failed",
				zap.Int64("order_id", orderID),
				zap.String("refund_id", refund.RefundID),
				zap.Error(err),
			)
			return nil, newServiceError(err)
		}
		_ = s.metrics.RecordCount(ctx, aws_pkg.MetricPaymentRefunded, nil)
	}

	s.logger.Info("Refund processed",
		zap.Int64("order_id", orderID),
		zap.String("refund_id", refund.RefundID),
		zap.String("refund_status", refund.Status),
	)
	return &RefundOutcome{Payment: payment, Refund: refund}, nil
}
