package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
	"github.com/kasuganosora/questforge/scheduler"
	"go.uber.org/zap"
)

// HostStatus reports whether the game host is linked.
type HostStatus interface {
	Connected() bool
}

// Announcer broadcasts a server-wide announcement to player streams.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminKey middleware.
type AdminHandler struct {
	svc      *quest.Service
	players  *player.Manager
	npcs     *npc.Directory
	host     HostStatus
	sched    *scheduler.Scheduler
	announce Announcer
	history  cache.Cache
	logger   *zap.Logger
}

const (
	announceHistoryKey = "announce:history"
	announceHistoryCap = 50
)

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	svc *quest.Service,
	players *player.Manager,
	npcs *npc.Directory,
	host HostStatus,
	sched *scheduler.Scheduler,
	announce Announcer,
	history cache.Cache,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		svc: svc, players: players, npcs: npcs, host: host,
		sched: sched, announce: announce, history: history, logger: logger,
	}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	body := gin.H{
		"online_players": h.players.Count(),
		"loaded_players": h.svc.Players().Count(),
		"quests":         len(h.svc.Quests()),
		"npcs":           len(h.npcs.All()),
		"host_connected": h.host != nil && h.host.Connected(),
	}
	if h.sched != nil {
		body["scheduler_tasks"] = h.sched.ListTickers()
	}
	c.JSON(http.StatusOK, body)
}

type playerInfo struct {
	UUID     string         `json:"uuid"`
	Name     string         `json:"name"`
	Location world.Location `json:"location"`
}

// ListPlayers returns a snapshot of all online players.
// GET /api/admin/players
func (h *AdminHandler) ListPlayers(c *gin.Context) {
	all := h.players.All()
	result := make([]playerInfo, 0, len(all))
	for _, p := range all {
		result = append(result, playerInfo{
			UUID:     p.UUID().String(),
			Name:     p.Name(),
			Location: p.Location(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"players": result, "count": len(result)})
}

// ListNPCs returns the NPCs mirrored from the host.
// GET /api/admin/npcs
func (h *AdminHandler) ListNPCs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"npcs": h.npcs.All()})
}

type messageRequest struct {
	Message string `json:"message" binding:"required,max=256"`
}

// SendMessage relays a chat message to an online player.
// POST /api/admin/players/:uuid/message
func (h *AdminHandler) SendMessage(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.players.IsOnline(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "player offline"})
		return
	}
	h.players.SendMessage(id, req.Message)
	h.logger.Info("admin message sent", zap.String("player", id.String()))
	c.JSON(http.StatusOK, gin.H{"message": "sent"})
}

// Announce broadcasts a message to every open player stream.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.announce == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "announcements disabled"})
		return
	}
	data, _ := json.Marshal(gin.H{"message": req.Message})
	if err := h.announce.Announce(c.Request.Context(), string(data)); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.remember(c.Request.Context(), req.Message)
	c.JSON(http.StatusOK, gin.H{"message": "announced"})
}

// remember keeps the newest announcements in a capped list. Failures only
// lose history, so they are logged.
func (h *AdminHandler) remember(ctx context.Context, message string) {
	if h.history == nil {
		return
	}
	if err := h.history.LPush(ctx, announceHistoryKey, message); err != nil {
		h.logger.Warn("announcement history push failed", zap.Error(err))
		return
	}
	if err := h.history.LTrim(ctx, announceHistoryKey, 0, announceHistoryCap-1); err != nil {
		h.logger.Warn("announcement history trim failed", zap.Error(err))
	}
}

// Announcements lists recent announcements, newest first.
// GET /api/admin/announcements
func (h *AdminHandler) Announcements(c *gin.Context) {
	msgs := []string{}
	if h.history != nil {
		items, err := h.history.LRange(c.Request.Context(), announceHistoryKey, 0, announceHistoryCap-1)
		if err != nil {
			h.logger.Error("announcement history read failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		msgs = append(msgs, items...)
	}
	c.JSON(http.StatusOK, gin.H{"announcements": msgs, "count": len(msgs)})
}
