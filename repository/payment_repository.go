package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kauan1020/payments-microservice/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicatePayment = errors.New("payment already exists for order")
)

// PaymentRepository persists payments keyed by order id.
type PaymentRepository interface {
	Add(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) (*models.Payment, error)
}

type gormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepo{db: db}
}

func (r *gormPaymentRepo) Add(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: order %d", ErrDuplicatePayment, payment.OrderID)
		}
		return nil, fmt.Errorf("insert payment for order %d: %w", payment.OrderID, err)
	}
	return payment, nil
}

func (r *gormPaymentRepo) GetByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("load payment for order %d: %w", orderID, err)
	}
	return &payment, nil
}

// Update writes the mutable columns of payment. Amount and created_at are never touched.
func (r *gormPaymentRepo) Update(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ?", payment.OrderID).
		Updates(map[string]interface{}{
			"status":          payment.Status,
			"transaction_id":  payment.TransactionID,
			"error_message":   payment.ErrorMessage,
			"payment_method":  payment.PaymentMethod,
			"last_request_id": payment.LastRequestID,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update payment for order %d: %w", payment.OrderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, payment.OrderID)
	}
	payment.UpdatedAt = now
	return payment, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
