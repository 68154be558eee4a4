package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/providers"
	"github.com/kauan1020/payments-microservice/services"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// StripeEventParser verifies and interprets Stripe webhook deliveries.
type StripeEventParser interface {
	Parse(payload []byte, signature string) (stripe.Event, error)
	StatusUpdate(event stripe.Event) (providers.WebhookUpdate, bool, error)
}

// StripeWebhookController applies Stripe payment events as status updates.
type StripeWebhookController struct {
	payments services.PaymentService
	parser   StripeEventParser
	logger   *zap.Logger
}

func NewStripeWebhookController(svc services.PaymentService, parser StripeEventParser, logger *zap.Logger) *StripeWebhookController {
	return &StripeWebhookController{payments: svc, parser: parser, logger: logger}
}

// HandleWebhook handles POST /stripe/webhook. Events that cannot ever apply are
// acknowledged so Stripe stops retrying them; server-side failures are not.
func (wc *StripeWebhookController) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	event, err := wc.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		wc.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	update, ok, err := wc.parser.StatusUpdate(event)
	if err != nil {
		wc.logger.Warn("Ignoring Stripe event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if !ok {
		wc.logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	payment, svcErr := wc.payments.UpdatePaymentStatus(c.Request.Context(), update.OrderID, update.Status.String())
	if svcErr != nil {
		if svcErr.StatusCode >= http.StatusInternalServerError {
			_ = c.Error(svcErr)
			return
		}
		wc.logger.Warn("Stripe event not applied",
			zap.String("event_id", update.EventID),
			zap.Int64("order_id", update.OrderID),
			zap.String("status", update.Status.String()),
			zap.Error(svcErr),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	wc.logger.Info("Stripe event applied",
		zap.String("event_id", update.EventID),
		zap.String("event_type", update.EventType),
		zap.Int64("order_id", payment.OrderID),
		zap.String("status", payment.Status.String()),
	)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
