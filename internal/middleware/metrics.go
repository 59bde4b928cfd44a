package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records latency and status per route template and caller role. Requests whose path ends
// with one of skipSuffixes (probes, the scrape endpoint) are not recorded.
func Metrics(metrics *service.MetricsService, skipSuffixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		for _, suffix := range skipSuffixes {
			if route != "" && strings.HasSuffix(route, suffix) {
				return
			}
		}
		// Unmatched paths share one label.
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, callerRole(c), c.Writer.Status(), time.Since(start))
	}
}

func callerRole(c *gin.Context) string {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return "anonymous"
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil || claims.Role == "" {
		return "anonymous"
	}
	return strings.ToLower(string(claims.Role))
}
