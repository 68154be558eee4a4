package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kauan1020/payments-microservice/models"
	"github.com/shopspring/decimal"
)

// DynamoAPI is the subset of the DynamoDB client used by the payment table.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoPaymentRepository stores one item per order, keyed by order_id.
type DynamoPaymentRepository struct {
	client DynamoAPI
	table  string
}

func NewDynamoPaymentRepository(client DynamoAPI, table string) *DynamoPaymentRepository {
	return &DynamoPaymentRepository{client: client, table: table}
}

type ddbPayment struct {
	OrderID       int64  `dynamodbav:"order_id"`
	Amount        string `dynamodbav:"amount"`
	Status        string `dynamodbav:"status"`
	TransactionID string `dynamodbav:"transaction_id,omitempty"`
	ErrorMessage  string `dynamodbav:"error_message,omitempty"`
	PaymentMethod string `dynamodbav:"payment_method,omitempty"`
	LastRequestID string `dynamodbav:"last_request_id,omitempty"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

func toItem(p *models.Payment) ddbPayment {
	return ddbPayment{
		OrderID:       p.OrderID,
		Amount:        p.Amount.String(),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		ErrorMessage:  p.ErrorMessage,
		PaymentMethod: p.PaymentMethod,
		LastRequestID: p.LastRequestID,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromItem(d ddbPayment) (*models.Payment, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", d.Amount, err)
	}
	status, err := models.ParsePaymentStatus(d.Status)
	if err != nil {
		return nil, err
	}
	p := &models.Payment{
		OrderID:       d.OrderID,
		Amount:        amount,
		Status:        status,
		TransactionID: d.TransactionID,
		ErrorMessage:  d.ErrorMessage,
		PaymentMethod: d.PaymentMethod,
		LastRequestID: d.LastRequestID,
	}
	if t, err := time.Parse(time.RFC3339Nano, d.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, d.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func (r *DynamoPaymentRepository) Add(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	if err := r.put(ctx, payment, "attribute_not_exists(order_id)"); err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("%w: order %d", ErrDuplicatePayment, payment.OrderID)
		}
		return nil, err
	}
	return payment, nil
}

func (r *DynamoPaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            orderKey(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}

	var item ddbPayment
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return fromItem(item)
}

// Update replaces the item only when it already exists. The stored amount and
// created_at are preserved.
func (r *DynamoPaymentRepository) Update(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	current, err := r.GetByOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	payment.Amount = current.Amount
	payment.CreatedAt = current.CreatedAt
	payment.UpdatedAt = time.Now().UTC()

	if err := r.put(ctx, payment, "attribute_exists(order_id)"); err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, payment.OrderID)
		}
		return nil, err
	}
	return payment, nil
}

func (r *DynamoPaymentRepository) put(ctx context.Context, payment *models.Payment, condition string) error {
	item, err := attributevalue.MarshalMap(toItem(payment))
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.table,
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func orderKey(orderID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
