package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
)

// NewRouter builds the gin engine shared by both services, with health,
// metrics and request logging wired in.
func NewRouter(logger *zap.Logger, m *metrics.HTTP, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), m.Middleware(), requestLogger(logger))
	r.GET("/health", HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "/health" || c.FullPath() == "/metrics" {
			return
		}
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
