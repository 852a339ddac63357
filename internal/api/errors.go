package api

import (
	"errors"
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/payment"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes err as JSON with the status its kind maps to
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": apperr.Message(err)}
	status := http.StatusInternalServerError

	var checkoutErr *apperr.CheckoutError
	switch {
	case errors.As(err, &checkoutErr):
		body["payment_reference"] = checkoutErr.PaymentReference
		body["refunded"] = checkoutErr.Refunded
	case errors.Is(err, payment.ErrDeclined):
		status = http.StatusPaymentRequired
		body["error"] = "Your payment was declined"
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
		body["retryable"] = true
	}

	logger := util.LoggerFrom(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
