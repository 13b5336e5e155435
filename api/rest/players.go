package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/kasuganosora/questforge/model"
	"go.uber.org/zap"
)

const (
	journalDefault = 50
	journalMax     = 500
)

// JournalReader returns a player's recorded quest history, newest first.
type JournalReader interface {
	History(ctx context.Context, player uuid.UUID, limit int) ([]model.QuestJournal, error)
}

// playerParam parses the :uuid path parameter, answering 400 when invalid.
func playerParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func journalLimit(c *gin.Context) int {
	limit := journalDefault
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = min(l, journalMax)
	}
	return limit
}

func writeJournal(c *gin.Context, j JournalReader, id uuid.UUID) {
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	entries, err := j.History(c.Request.Context(), id, journalLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": entries})
}

func writeQuests(c *gin.Context, svc *quest.Service, id uuid.UUID) {
	ctx := c.Request.Context()
	active, err := svc.ActiveQuests(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	completed, err := svc.CompletedQuests(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active, "completed": completed})
}

// PlayerHandler serves the authenticated player's own quest log.
type PlayerHandler struct {
	svc     *quest.Service
	players *player.Manager
	journal JournalReader
	logger  *zap.Logger
}

// NewPlayerHandler creates a PlayerHandler. journal may be nil.
func NewPlayerHandler(svc *quest.Service, players *player.Manager, journal JournalReader, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{svc: svc, players: players, journal: journal, logger: logger}
}

// Quests handles GET /api/player/quests.
func (h *PlayerHandler) Quests(c *gin.Context) {
	writeQuests(c, h.svc, mw.GetPlayer(c))
}

// Available handles GET /api/player/quests/available.
func (h *PlayerHandler) Available(c *gin.Context) {
	qs, err := h.svc.Available(c.Request.Context(), mw.GetPlayer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]QuestSummary, 0, len(qs))
	for _, q := range qs {
		out = append(out, summarize(q))
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// Accept handles POST /api/player/quests/:name/accept.
func (h *PlayerHandler) Accept(c *gin.Context) {
	err := h.svc.Accept(c.Request.Context(), mw.GetPlayer(c), c.Param("name"), quest.AcceptOptions{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// Abort handles POST /api/player/quests/:name/abort.
func (h *PlayerHandler) Abort(c *gin.Context) {
	if err := h.svc.Abort(c.Request.Context(), mw.GetPlayer(c), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "aborted"})
}

// Messages handles GET /api/player/messages, the recent chat lines the
// quest engine sent to the player.
func (h *PlayerHandler) Messages(c *gin.Context) {
	p := h.players.Get(mw.GetPlayer(c))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player offline"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": p.Messages()})
}

// Journal handles GET /api/player/journal?limit=50.
func (h *PlayerHandler) Journal(c *gin.Context) {
	writeJournal(c, h.journal, mw.GetPlayer(c))
}

// BridgeHandler exposes the quest operations other plugins and operators
// drive on behalf of a player.
type BridgeHandler struct {
	svc     *quest.Service
	journal JournalReader
	logger  *zap.Logger
}

// NewBridgeHandler creates a BridgeHandler. journal may be nil.
func NewBridgeHandler(svc *quest.Service, journal JournalReader, logger *zap.Logger) *BridgeHandler {
	return &BridgeHandler{svc: svc, journal: journal, logger: logger}
}

// Quests handles GET /api/admin/players/:uuid/quests.
func (h *BridgeHandler) Quests(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	writeQuests(c, h.svc, id)
}

// Journal handles GET /api/admin/players/:uuid/journal.
func (h *BridgeHandler) Journal(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	writeJournal(c, h.journal, id)
}

type startRequest struct {
	Force      bool `json:"force"`
	Silent     bool `json:"silent"`
	NoTriggers bool `json:"no_triggers"`
}

// Start handles POST /api/admin/players/:uuid/quests/:name/start.
func (h *BridgeHandler) Start(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	err := h.svc.StartQuest(c.Request.Context(), id, c.Param("name"), req.Force, req.Silent, req.NoTriggers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "started"})
}

// Fail handles POST /api/admin/players/:uuid/quests/:name/fail.
func (h *BridgeHandler) Fail(c *gin.Context) {
	h.lifecycle(c, h.svc.Fail, "failed")
}

// Abort handles POST /api/admin/players/:uuid/quests/:name/abort.
func (h *BridgeHandler) Abort(c *gin.Context) {
	h.lifecycle(c, h.svc.Abort, "aborted")
}

func (h *BridgeHandler) lifecycle(c *gin.Context, fn func(context.Context, uuid.UUID, string) error, done string) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), id, c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": done})
}

// CompleteObjective handles
// POST /api/admin/players/:uuid/quests/:name/objectives/:id/complete.
func (h *BridgeHandler) CompleteObjective(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	objective, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid objective id"})
		return
	}
	if err := h.svc.CompleteObjective(c.Request.Context(), id, c.Param("name"), objective); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "completed"})
}

type triggerRequest struct {
	Objective string `json:"objective" binding:"required"`
}

// TriggerObjective handles POST /api/admin/players/:uuid/quests/:name/trigger,
// advancing a TriggerCommand objective by name.
func (h *BridgeHandler) TriggerObjective(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.TriggerObjective(c.Request.Context(), id, c.Param("name"), req.Objective); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "triggered"})
}

// RunAction handles POST /api/admin/players/:uuid/actions, executing one
// action document against the player.
func (h *BridgeHandler) RunAction(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var doc quest.ActionDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := doc.Decode()
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.RunAction(c.Request.Context(), id, a); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "executed"})
}
