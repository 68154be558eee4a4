package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/controllers"
	"github.com/kauan1020/payments-microservice/middleware"
	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
	"go.uber.org/zap"
)

const serviceName = "payments-service"

// RouterConfig carries the HTTP settings the router needs.
type RouterConfig struct {
	AllowedOrigins []string
	JWTSecret      string
	RequestTimeout time.Duration
	RatePerMinute  int
	RateBurst      int
}

// NewRouter builds the gin engine with the global middleware chain and all routes.
// stripe may be nil when no webhook secret is configured.
func NewRouter(
	cfg RouterConfig,
	pc *controllers.PaymentController,
	stripe *controllers.StripeWebhookController,
	metrics *aws_pkg.MetricsClient,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimitMiddleware(cfg.RatePerMinute, cfg.RateBurst))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(logger))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Payments Microservice"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	RegisterPaymentRoutes(r, pc, cfg.JWTSecret)
	if stripe != nil {
		r.POST("/stripe/webhook", stripe.HandleWebhook)
	}
	return r
}

// RegisterPaymentRoutes sets up the payment routes. Refunds require an admin token.
func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentController, jwtSecret string) {
	payments := r.Group("/payments")
	payments.POST("", pc.CreatePayment)
	payments.GET("/:order_id", pc.GetPaymentStatus)
	payments.POST("/:order_id/refund", middleware.AdminAuth(jwtSecret), pc.RefundPayment)

	r.POST("/webhook", pc.UpdatePaymentStatus)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
