package api

import (
    "crypto/subtle"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"

    "vodqueue/config"
)

// AuthMiddleware checks the bearer token when AUTH_ENABLE is set.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
    return func(c *gin.Context) {
        if !cfg.AuthEnable {
            c.Next()
            return
        }

        authHeader := c.GetHeader("Authorization")
        if authHeader == "" {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authorization header required"})
            return
        }

        scheme, token, ok := strings.Cut(authHeader, " ")
        if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid Authorization header format"})
            return
        }

        if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AuthKey)) != 1 {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid token"})
            return
        }

        c.Next()
    }
}
