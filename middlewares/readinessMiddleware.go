package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessMiddleware answers 503 until ready reports true. The probe
// paths always pass so the platform can see the process is up.
func ReadinessMiddleware(ready func() bool, probePaths ...string) gin.HandlerFunc {
	open := make(map[string]bool, len(probePaths))
	for _, p := range probePaths {
		open[p] = true
	}
	return func(c *gin.Context) {
		if open[c.Request.URL.Path] {
			c.Next()
			return
		}
		if !ready() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error": gin.H{
					"kind":    "DependencyUnavailable",
					"message": "service is starting",
				},
			})
			return
		}
		c.Next()
	}
}
