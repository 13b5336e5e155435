package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

const (
	rankingZKey = "quest:ranking:completions"
	rankingTop  = 100
	rankingHook = "ranking"
)

// RankingHandler keeps and serves the quest completion leaderboard.
type RankingHandler struct {
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{cache: c, logger: logger}
}

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank        int    `json:"rank"`
	Player      string `json:"player"`
	Completions int64  `json:"completions"`
}

// Register counts every quest completion published on hc.
func (h *RankingHandler) Register(hc *hook.HookCenter) {
	hc.Register(hook.OnQuestComplete, 100, rankingHook, h.onComplete)
}

func (h *RankingHandler) onComplete(ctx context.Context, _ string, data interface{}) (interface{}, error) {
	d, ok := data.(quest.HookData)
	if !ok {
		return data, nil
	}
	if _, err := h.cache.ZIncrBy(ctx, rankingZKey, 1, d.Player.String()); err != nil {
		h.logger.Warn("ranking update failed", zap.String("player", d.Player.String()), zap.Error(err))
	}
	return data, nil
}

// TopCompletions returns the players with the most quest completions.
// GET /api/ranking/completions?limit=20
func (h *RankingHandler) TopCompletions(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, rankingZKey, 0, int64(limit-1))
	if err != nil && !cache.IsNotFound(err) {
		h.logger.Error("ranking read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	entries := make([]RankEntry, 0, len(members))
	for i, m := range members {
		score, _ := h.cache.ZScore(ctx, rankingZKey, m)
		entries = append(entries, RankEntry{Rank: i + 1, Player: m, Completions: int64(score)})
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}
