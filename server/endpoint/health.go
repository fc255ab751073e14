package endpoint

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/infermesh/component"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Health reports {"status":"ok"} while every component is healthy. A
// degraded component keeps 200; an unhealthy one turns it into a 503 so
// clients fail over to another node.
func Health(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		var components []component.Health

		if checker != nil {
			components = checker(c.Request.Context())
			for _, ch := range components {
				if ch.Status == component.StatusUnhealthy {
					status = "unhealthy"
					break
				}
				if ch.Status == component.StatusDegraded {
					status = "degraded"
				}
			}
		}

		httpStatus := http.StatusOK
		if status == "unhealthy" {
			httpStatus = http.StatusServiceUnavailable
		}

		body := gin.H{"status": status}
		if status != "ok" {
			body["components"] = components
		}
		c.JSON(httpStatus, body)
	}
}
