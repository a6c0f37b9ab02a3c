package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const idempotencyHeader = "Idempotency-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*domain.Order, error)
	ModifyOrder(ctx context.Context, orderID string, items []domain.OrderItem) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error)
}

type OrderHTTPHandler struct {
	orders OrderService
	logger *zap.Logger
}

type CreateOrderRequest struct {
	CustomerEmail string             `json:"customerEmail"`
	Items         []domain.OrderItem `json:"items"`
}

type ModifyOrderRequest struct {
	Items []domain.OrderItem `json:"items"`
}

type ListOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

func NewOrderHTTPHandler(orders OrderService, logger *zap.Logger) *OrderHTTPHandler {
	return &OrderHTTPHandler{orders: orders, logger: logger}
}

func (h *OrderHTTPHandler) RegisterRoutes(router gin.IRouter) {
	orders := router.Group("/api/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PATCH("/:id", h.ModifyOrder)
	}
}

// CreateOrder answers 201 with the confirmed order. A failed saga answers with
// the error and the cancelled order.
func (h *OrderHTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		CustomerEmail:  req.CustomerEmail,
		Items:          req.Items,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		writeError(c, h.logger, err, order)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *OrderHTTPHandler) ModifyOrder(c *gin.Context) {
	var req ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orders.ModifyOrder(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHTTPHandler) ListOrders(c *gin.Context) {
	filter := port.OrderFilter{CustomerEmail: c.Query("customerEmail")}

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			writeError(c, h.logger, err, nil)
			return
		}
		filter.Status = status
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, ListOrdersResponse{Orders: orders})
}
