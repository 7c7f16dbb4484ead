package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ctcadmin/ctc-admin-api/internal/service"
)

// Metrics records per-request duration and status. The route template is
// used as the path label so IDs do not explode cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
