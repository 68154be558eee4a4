package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/kauan1020/payments-microservice/messaging"
	"github.com/kauan1020/payments-microservice/models"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(repo *memRepo, gw *stubGateway, provider *stubProvider, requests *recordingPublisher) services.PaymentService {
	if provider == nil {
		provider = &stubProvider{}
	}
	var pub messaging.Publisher
	if requests != nil {
		pub = requests
	}
	return services.NewPaymentService(repo, gw, provider, pub, nil, time.Second, zap.NewNop())
}

func TestCreatePayment_RoundTrip(t *testing.T) {
	repo := newMemRepo()
	requests := &recordingPublisher{}
	svc := newService(repo, &stubGateway{order: orderWithTotal(42, "100.50")}, nil, requests)

	payment, serr := svc.CreatePayment(context.Background(), 42, "credit_card")
	require.Nil(t, serr)
	assert.Equal(t, int64(42), payment.OrderID)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.NotZero(t, payment.ID)

	status, serr := svc.GetPaymentStatus(context.Background(), 42)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusPending, status)

	require.Equal(t, 1, requests.count())
	assert.Equal(t, "42", requests.keys[0])
	var req models.PaymentRequest
	require.NoError(t, json.Unmarshal(requests.payloads[0], &req))
	assert.Equal(t, int64(42), req.OrderID)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, "credit_card", req.PaymentMethod)
	assert.NotEmpty(t, req.RequestID)
}

func TestCreatePayment_EnqueueFailureStillCreates(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &stubGateway{order: orderWithTotal(5, "10")}, nil, &recordingPublisher{err: errBoom})

	payment, serr := svc.CreatePayment(context.Background(), 5, "")
	require.Nil(t, serr)
	assert.Equal(t, models.StatusPending, payment.Status)
}

func TestCreatePayment_Errors(t *testing.T) {
	tests := []struct {
		name     string
		gateway  *stubGateway
		existing []models.Payment
		wantErr  error
		wantCode int
	}{
		{"order not found", &stubGateway{err: gateways.ErrOrderNotFound}, nil, services.ErrOrderNotFound, http.StatusNotFound},
		{"gateway unavailable", &stubGateway{err: gateways.ErrOrderGatewayUnavailable}, nil, services.ErrOrderGatewayUnavailable, http.StatusBadGateway},
		{"missing total", &stubGateway{order: &models.Order{ID: 1}}, nil, services.ErrInvalidOrder, http.StatusBadRequest},
		{"zero total", &stubGateway{order: orderWithTotal(1, "0")}, nil, services.ErrInvalidOrder, http.StatusBadRequest},
		{
			"duplicate",
			&stubGateway{order: orderWithTotal(1, "10")},
			[]models.Payment{{OrderID: 1, Amount: decimal.NewFromInt(10), Status: models.StatusPending}},
			services.ErrDuplicatePayment,
			http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := &recordingPublisher{}
			svc := newService(newMemRepo(tt.existing...), tt.gateway, nil, requests)

			payment, serr := svc.CreatePayment(context.Background(), 1, "")
			assert.Nil(t, payment)
			require.NotNil(t, serr)
			assert.ErrorIs(t, serr, tt.wantErr)
			assert.Equal(t, tt.wantCode, serr.StatusCode)
			assert.Zero(t, requests.count())
		})
	}
}

func TestCreatePayment_StoreFailureIsInternal(t *testing.T) {
	repo := newMemRepo()
	repo.addErr = errors.New("connection reset")
	svc := newService(repo, &stubGateway{order: orderWithTotal(1, "10")}, nil, nil)

	_, serr := svc.CreatePayment(context.Background(), 1, "")
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.Equal(t, "Internal server error", serr.Message)
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	svc := newService(newMemRepo(), &stubGateway{}, nil, nil)

	_, serr := svc.GetPaymentStatus(context.Background(), 999)
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}

func TestUpdatePaymentStatus(t *testing.T) {
	repo := newMemRepo(models.Payment{OrderID: 3, Amount: decimal.NewFromInt(20), Status: models.StatusProcessing})
	svc := newService(repo, &stubGateway{}, nil, nil)

	payment, serr := svc.UpdatePaymentStatus(context.Background(), 3, "APPROVED")
	require.Nil(t, serr)
	assert.Equal(t, models.StatusApproved, payment.Status)

	stored, _ := repo.get(3)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestUpdatePaymentStatus_LowercaseIsRejected(t *testing.T) {
	repo := newMemRepo(models.Payment{OrderID: 3, Amount: decimal.NewFromInt(20), Status: models.StatusProcessing})
	svc := newService(repo, &stubGateway{}, nil, nil)

	_, serr := svc.UpdatePaymentStatus(context.Background(), 3, "approved")
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrInvalidStatus)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)

	stored, _ := repo.get(3)
	assert.Equal(t, models.StatusProcessing, stored.Status)
}

func TestUpdatePaymentStatus_SameStatusIsNoop(t *testing.T) {
	repo := newMemRepo(models.Payment{OrderID: 3, Status: models.StatusApproved})
	svc := newService(repo, &stubGateway{}, nil, nil)

	payment, serr := svc.UpdatePaymentStatus(context.Background(), 3, "APPROVED")
	require.Nil(t, serr)
	assert.Equal(t, models.StatusApproved, payment.Status)
	assert.Zero(t, repo.updates)
}

func TestUpdatePaymentStatus_InvalidStatusLeavesStoreUntouched(t *testing.T) {
	repo := newMemRepo(models.Payment{OrderID: 3, Status: models.StatusPending})
	svc := newService(repo, &stubGateway{}, nil, nil)

	_, serr := svc.UpdatePaymentStatus(context.Background(), 3, "NOT_A_STATUS")
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrInvalidStatus)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Zero(t, repo.gets)
	assert.Zero(t, repo.updates)

	stored, _ := repo.get(3)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestUpdatePaymentStatus_NotFound(t *testing.T) {
	svc := newService(newMemRepo(), &stubGateway{}, nil, nil)

	_, serr := svc.UpdatePaymentStatus(context.Background(), 3, "APPROVED")
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrNotFound)
}

func TestUpdatePaymentStatus_DisallowedTransition(t *testing.T) {
	repo := newMemRepo(models.Payment{OrderID: 3, Status: models.StatusRejected})
	svc := newService(repo, &stubGateway{}, nil, nil)

	_, serr := svc.UpdatePaymentStatus(context.Background(), 3, "APPROVED")
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrInvalidTransition)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Zero(t, repo.updates)
}

func approvedPayment(orderID int64, amount string) models.Payment {
	return models.Payment{
		OrderID:       orderID,
		Amount:        decimal.RequireFromString(amount),
		Status:        models.StatusApproved,
		TransactionID: "pi_123",
	}
}

func TestRefundPayment_Succeeded(t *testing.T) {
	repo := newMemRepo(approvedPayment(8, "80.00"))
	provider := &stubProvider{refund: &providers.RefundResult{RefundID: "re_1", Status: providers.RefundSucceeded}}
	svc := newService(repo, &stubGateway{}, provider, nil)

	outcome, serr := svc.RefundPayment(context.Background(), 8, nil)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusRefunded, outcome.Payment.Status)
	assert.Equal(t, "re_1", outcome.Refund.RefundID)
	assert.Equal(t, "pi_123", outcome.Refund.TransactionID)
	assert.Nil(t, provider.refundAmount)

	stored, _ := repo.get(8)
	assert.Equal(t, models.StatusRefunded, stored.Status)
	assert.Equal(t, "pi_123", stored.TransactionID)
}

func TestRefundPayment_PendingRefundKeepsApproved(t *testing.T) {
	repo := newMemRepo(approvedPayment(8, "80.00"))
	provider := &stubProvider{refund: &providers.RefundResult{RefundID: "re_2", Status: providers.RefundPending}}
	svc := newService(repo, &stubGateway{}, provider, nil)

	partial := decimal.RequireFromString("30")
	outcome, serr := svc.RefundPayment(context.Background(), 8, &partial)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusApproved, outcome.Payment.Status)
	assert.Equal(t, providers.RefundPending, outcome.Refund.Status)
	require.NotNil(t, provider.refundAmount)
	assert.True(t, provider.refundAmount.Equal(partial))
	assert.Zero(t, repo.updates)
}

func TestRefundPayment_Rejections(t *testing.T) {
	tooMuch := decimal.RequireFromString("100")
	negative := decimal.RequireFromString("-1")

	tests := []struct {
		name     string
		existing []models.Payment
		amount   *decimal.Decimal
		wantErr  error
		wantCode int
	}{
		{"not found", nil, nil, services.ErrNotFound, http.StatusNotFound},
		{"not approved", []models.Payment{{OrderID: 8, Status: models.StatusPending}}, nil, services.ErrRefundNotAllowed, http.StatusConflict},
		{"no transaction", []models.Payment{{OrderID: 8, Status: models.StatusApproved}}, nil, services.ErrRefundNotAllowed, http.StatusConflict},
		{"above amount", []models.Payment{approvedPayment(8, "80")}, &tooMuch, services.ErrInvalidRefundAmount, http.StatusBadRequest},
		{"negative amount", []models.Payment{approvedPayment(8, "80")}, &negative, services.ErrInvalidRefundAmount, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{}
			svc := newService(newMemRepo(tt.existing...), &stubGateway{}, provider, nil)

			_, serr := svc.RefundPayment(context.Background(), 8, tt.amount)
			require.NotNil(t, serr)
			assert.ErrorIs(t, serr, tt.wantErr)
			assert.Equal(t, tt.wantCode, serr.StatusCode)
			assert.Zero(t, provider.refundCalls)
		})
	}
}

func TestRefundPayment_ProviderError(t *testing.T) {
	repo := newMemRepo(approvedPayment(8, "80.00"))
	provider := &stubProvider{refundErr: errors.New("charge already refunded")}
	svc := newService(repo, &stubGateway{}, provider, nil)

	_, serr := svc.RefundPayment(context.Background(), 8, nil)
	require.NotNil(t, serr)
	assert.ErrorIs(t, serr, services.ErrProviderError)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Contains(t, serr.Message, "charge already refunded")

	stored, _ := repo.get(8)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestStatusCodeFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, services.StatusCodeFor(services.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, services.StatusCodeFor(services.ErrMalformedMessage))
	assert.Equal(t, http.StatusConflict, services.StatusCodeFor(services.ErrDuplicatePayment))
	assert.Equal(t, http.StatusBadGateway, services.StatusCodeFor(services.ErrProviderError))
	assert.Equal(t, http.StatusInternalServerError, services.StatusCodeFor(errBoom))
	assert.Equal(t, http.StatusTeapot, services.StatusCodeFor(&services.ServiceError{StatusCode: http.StatusTeapot}))
}
