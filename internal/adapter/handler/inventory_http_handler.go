package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

const defaultStockReason = "manual"

// StockLedger is the inventory surface exposed over HTTP and gRPC.
type StockLedger interface {
	ApplyStockRequest(ctx context.Context, productID string, delta int, reason, requestID string) (domain.StockRecord, error)
	RegisterProduct(ctx context.Context, productID string, initialStock int) (domain.StockRecord, error)
	GetStock(ctx context.Context, productID string) (domain.StockRecord, error)
	LowStock(ctx context.Context, threshold int) ([]domain.StockRecord, error)
	History(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error)
}

type InventoryHTTPHandler struct {
	ledger StockLedger
	logger *zap.Logger
}

type RegisterProductRequest struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
}

func NewInventoryHTTPHandler(ledger StockLedger, logger *zap.Logger) *InventoryHTTPHandler {
	return &InventoryHTTPHandler{ledger: ledger, logger: logger}
}

func (h *InventoryHTTPHandler) RegisterRoutes(router gin.IRouter) {
	products := router.Group("/api/products")
	{
		products.POST("", h.RegisterProduct)
		products.GET("/low-stock", h.LowStock)
		products.GET("/:id", h.GetStock)
		products.PUT("/:id/stock", h.UpdateStock)
		products.GET("/:id/history", h.History)
	}
}

func (h *InventoryHTTPHandler) UpdateStock(c *gin.Context) {
	delta, err := strconv.ParseInt(c.Query("delta"), 10, 32)
	if err != nil {
		badRequest(c, "delta must be a 32-bit integer")
		return
	}
	reason := c.DefaultQuery("reason", defaultStockReason)

	rec, err := h.ledger.ApplyStockRequest(c.Request.Context(), c.Param("id"), int(delta), reason, c.Query("requestId"))
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *InventoryHTTPHandler) RegisterProduct(c *gin.Context) {
	var req RegisterProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Stock > domain.MaxQuantity {
		badRequest(c, "stock is out of range")
		return
	}

	rec, err := h.ledger.RegisterProduct(c.Request.Context(), req.ProductID, req.Stock)
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *InventoryHTTPHandler) GetStock(c *gin.Context) {
	rec, err := h.ledger.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *InventoryHTTPHandler) LowStock(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "threshold must be a non-negative integer")
			return
		}
		threshold = v
	}

	records, err := h.ledger.LowStock(c.Request.Context(), threshold)
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}
	if records == nil {
		records = []domain.StockRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"products": records})
}

func (h *InventoryHTTPHandler) History(c *gin.Context) {
	entries, err := h.ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, nil)
		return
	}
	if entries == nil {
		entries = []domain.StockHistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}
