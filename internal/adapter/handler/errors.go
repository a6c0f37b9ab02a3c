package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type errorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

// httpStatus maps a domain error to a status code and a stable error code.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		return http.StatusServiceUnavailable, "concurrency_exhausted"
	case errors.Is(err, domain.ErrInventoryUnavailable):
		return http.StatusBadGateway, "inventory_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error, order *domain.Order) {
	status, code := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "internal error"
	}

	c.JSON(status, errorResponse{Error: code, Message: message, Order: order})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "validation", Message: message})
}
