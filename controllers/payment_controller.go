package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/middleware"
	"github.com/kauan1020/payments-microservice/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentController handles HTTP requests for payment operations.
type PaymentController struct {
	payments services.PaymentService
	logger   *zap.Logger
}

func NewPaymentController(svc services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: svc, logger: logger}
}

type createPaymentRequest struct {
	OrderID       int64  `json:"order_id" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method"`
}

type webhookRequest struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// CreatePayment handles POST /payments
func (pc *PaymentController) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	payment, svcErr := pc.payments.CreatePayment(c.Request.Context(), req.OrderID, req.PaymentMethod)
	if svcErr != nil {
		_ = c.Error(svcErr)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order_id": payment.OrderID, "status": payment.Status})
}

// GetPaymentStatus handles GET /payments/:order_id
func (pc *PaymentController) GetPaymentStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	status, svcErr := pc.payments.GetPaymentStatus(c.Request.Context(), orderID)
	if svcErr != nil {
		_ = c.Error(svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": status})
}

// UpdatePaymentStatus handles POST /webhook. order_id and status come from the
// query string or, when absent there, from a JSON body.
func (pc *PaymentController) UpdatePaymentStatus(c *gin.Context) {
	var req webhookRequest
	if rawID, rawStatus := c.Query("order_id"), c.Query("status"); rawID != "" || rawStatus != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_id must be an integer"})
			return
		}
		req = webhookRequest{OrderID: id, Status: rawStatus}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if req.OrderID <= 0 || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id and status are required"})
		return
	}

	payment, svcErr := pc.payments.UpdatePaymentStatus(c.Request.Context(), req.OrderID, req.Status)
	if svcErr != nil {
		_ = c.Error(svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": payment.OrderID, "status": payment.Status})
}

// RefundPayment handles POST /payments/:order_id/refund. An empty body refunds
// the full amount.
func (pc *PaymentController) RefundPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	outcome, svcErr := pc.payments.RefundPayment(c.Request.Context(), orderID, req.Amount)
	if svcErr != nil {
		_ = c.Error(svcErr)
		return
	}

	pc.logger.Info("Refund requested",
		zap.Int64("order_id", orderID),
		zap.String("admin", middleware.GetUserID(c)),
		zap.String("refund_status", outcome.Refund.Status),
	)
	c.JSON(http.StatusOK, gin.H{
		"order_id":      orderID,
		"status":        outcome.Payment.Status,
		"refund_id":     outcome.Refund.RefundID,
		"refund_status": outcome.Refund.Status,
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id must be a positive integer"})
		return 0, false
	}
	return orderID, true
}
