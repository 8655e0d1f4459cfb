package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware restricts origins to frontendURL in production and reflects any origin elsewhere
func CORSMiddleware(environment, frontendURL string) gin.HandlerFunc {
	if environment == "" {
		environment = "development"
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if environment == "production" {
			allowedOrigin := frontendURL
			if allowedOrigin == "" {
				allowedOrigin = "https://djhub.app"
			}

			// exact match or a subdomain served over https
			isAllowed := origin == allowedOrigin
			if !isAllowed && strings.HasPrefix(origin, "https://") && strings.HasSuffix(origin, "."+strings.TrimPrefix(allowedOrigin, "https://")) {
				isAllowed = true
			}

			if isAllowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		} else {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				c.Header("Access-Control-Allow-Origin", "http://localhost:3000")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
