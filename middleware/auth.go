package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	PlayerKey      = "player_uuid"
	AdminKeyHeader = "X-Admin-Key"
)

// SessionKey is the cache key that keeps a token valid until logout.
func SessionKey(token string) string { return "session:" + token }

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		id, _ := claims.PlayerUUID()
		ctx.Set(PlayerKey, id)
		ctx.Next()
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header, or
// the token query parameter for clients that cannot set headers (SSE).
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if header != "" {
		return ""
	}
	return c.Query("token")
}

// GetPlayer retrieves the authenticated player from the Gin context.
func GetPlayer(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(PlayerKey); exists {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

// CheckAdminKey compares presented with the configured key, which may be
// stored as a bcrypt hash. An empty configured key rejects everything.
func CheckAdminKey(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// AdminKey guards the admin API with the X-Admin-Key header.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CheckAdminKey(key, c.GetHeader(AdminKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}
