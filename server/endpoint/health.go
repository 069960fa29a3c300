package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/version"
)

// Health reports the service and every checker as one ServiceHealth. A down
// component answers 503; a degraded one still answers 200 because cached
// results can be served.
func Health(service string, checkers ...observability.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := check(c, service, checkers)
		status := http.StatusOK
		if sh.Status == observability.HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, sh)
	}
}

func check(c *gin.Context, service string, checkers []observability.HealthChecker) *observability.ServiceHealth {
	sh := observability.NewServiceHealth(service, version.Version)
	for _, hc := range checkers {
		sh.AddComponent(hc.CheckHealth(c.Request.Context()))
	}
	return sh
}
