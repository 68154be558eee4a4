package services

import (
	"errors"
	"net/http"

	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/kauan1020/payments-microservice/models"
	"github.com/kauan1020/payments-microservice/repository"
)

var (
	ErrOrderNotFound           = gateways.ErrOrderNotFound
	ErrOrderGatewayUnavailable = gateways.ErrOrderGatewayUnavailable
	ErrInvalidOrder            = errors.New("order has no total price")
	ErrDuplicatePayment        = repository.ErrDuplicatePayment
	ErrNotFound                = repository.ErrNotFound
	ErrInvalidStatus           = models.ErrInvalidStatus
	ErrInvalidTransition       = models.ErrInvalidTransition
	ErrMalformedMessage        = models.ErrMalformedMessage
	ErrProviderError           = errors.New("payment provider error")
	ErrRefundNotAllowed        = errors.New("payment cannot be refunded")
	ErrInvalidRefundAmount     = errors.New("invalid refund amount")
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

// newServiceError maps a domain error onto its HTTP status.
func newServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	code := StatusCodeFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	return &ServiceError{StatusCode: code, Message: msg, Err: err}
}

// StatusCodeFor returns the HTTP status a domain error is reported with.
func StatusCodeFor(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrInvalidRefundAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicatePayment), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrRefundNotAllowed), errors.Is(err, models.ErrTransactionIDImmutable):
		return http.StatusConflict
	case errors.Is(err, ErrOrderGatewayUnavailable), errors.Is(err, ErrProviderError):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
