package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

// CORS admits the origins listed in ALLOWED_CORS_HOSTS; "*" admits any.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		host := c.Request.Header.Get("Origin")
		allowed := environment_variables.EnvironmentVariables.ALLOWED_CORS_HOSTS
		if host != "" && (slices.Contains(allowed, host) || slices.Contains(allowed, "*")) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", host)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+RequestIDHeader)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
			c.Writer.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
