package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/controllers"
	"github.com/kauan1020/payments-microservice/models"
	"github.com/kauan1020/payments-microservice/routes"
	"github.com/kauan1020/payments-microservice/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type statusOnlySvc struct{}

func (statusOnlySvc) CreatePayment(context.Context, int64, string) (*models.Payment, *services.ServiceError) {
	return nil, &services.ServiceError{StatusCode: http.StatusNotFound, Message: "order not found"}
}

func (statusOnlySvc) GetPaymentStatus(context.Context, int64) (models.PaymentStatus, *services.ServiceError) {
	return models.StatusPending, nil
}

func (statusOnlySvc) UpdatePaymentStatus(context.Context, int64, string) (*models.Payment, *services.ServiceError) {
	return nil, &services.ServiceError{StatusCode: http.StatusNotFound, Message: "payment not found"}
}

func (statusOnlySvc) RefundPayment(context.Context, int64, *decimal.Decimal) (*services.RefundOutcome, *services.ServiceError) {
	return nil, &services.ServiceError{StatusCode: http.StatusConflict, Message: "payment cannot be refunded"}
}

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	pc := controllers.NewPaymentController(statusOnlySvc{}, zap.NewNop())
	return routes.NewRouter(routes.RouterConfig{
		AllowedOrigins: origins,
		JWTSecret:      "secret",
		RatePerMinute:  1000,
		RateBurst:      100,
	}, pc, nil, nil, zap.NewNop())
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	r := newRouter(nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "Payments Microservice"}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestPaymentRoutes(t *testing.T) {
	r := newRouter(nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/payments/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"order_id": 42, "status": "PENDING"}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodPost, "/webhook?order_id=42&status=APPROVED", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "payment not found"}`, w.Body.String())
}

func TestRefundRequiresAdmin(t *testing.T) {
	w := serve(newRouter(nil), httptest.NewRequest(http.MethodPost, "/payments/42/refund", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStripeWebhookNotMountedWithoutSecret(t *testing.T) {
	w := serve(newRouter(nil), httptest.NewRequest(http.MethodPost, "/stripe/webhook", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter([]string{"https://shop.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/payments", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
