package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/config"
	mw "github.com/kasuganosora/questforge/middleware"
	"go.uber.org/zap"
)

// AuthHandler issues and revokes player tokens. The game host asks for a
// token on a player's behalf; players never log in here directly.
type AuthHandler struct {
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{cache: c, sec: sec, logger: logger}
}

type issueRequest struct {
	Player string `json:"player" binding:"required,uuid"`
	Name   string `json:"name" binding:"required,min=1,max=32"`
}

// Issue handles POST /api/admin/tokens.
func (h *AuthHandler) Issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(req.Player)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player uuid"})
		return
	}
	token, ok := h.issue(c, id, req.Name)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "player": id.String()})
}

func (h *AuthHandler) issue(c *gin.Context, id uuid.UUID, name string) (string, bool) {
	token, err := mw.GenerateToken(id, name, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return "", false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), id.String(), h.sec.JWTTTLH); err != nil {
		h.logger.Error("session store failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return "", false
	}
	return token, true
}

// Logout handles POST /api/player/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := mw.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(token))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/player/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	old := mw.BearerToken(c)
	claims, err := mw.ParseToken(old, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := claims.PlayerUUID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	_ = h.cache.Del(ctx, mw.SessionKey(old))
	cancel()

	token, ok := h.issue(c, id, claims.Name)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
