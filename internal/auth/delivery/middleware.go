package delivery

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coder92330/nylas-mail/internal/auth"
)

// AuthMiddleware requires an account-scoped bearer token and stores the
// granted account id on the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// SSE consumers cannot set headers from EventSource; accept the
			// token as a query parameter there.
			if token := c.Query("access_token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		accountID, err := auth.ParseAccountToken(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("accountID", accountID)
		c.Next()
	}
}
