package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kauan1020/payments-microservice/services"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error as {"error": msg}
// when the handler did not write a response itself.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var se *services.ServiceError
		if errors.As(err, &se) {
			c.JSON(se.StatusCode, gin.H{"error": se.Message})
			return
		}

		status := services.StatusCodeFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			logger.Error("Unhandled request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
			message = "Internal server error"
		}
		c.JSON(status, gin.H{"error": message})
	}
}
