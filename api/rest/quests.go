package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/resource"
	"go.uber.org/zap"
)

// QuestHandler serves quest definition administration.
type QuestHandler struct {
	svc      *quest.Service
	questDir string
	logger   *zap.Logger
}

// NewQuestHandler creates a QuestHandler. questDir is where export writes
// and import reads when the request names no documents; it may be empty.
func NewQuestHandler(svc *quest.Service, questDir string, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{svc: svc, questDir: questDir, logger: logger}
}

// QuestSummary is one row of the quest list.
type QuestSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Objectives  int    `json:"objectives"`
	Triggers    int    `json:"triggers"`
	TakeEnabled bool   `json:"take_enabled"`
}

func summarize(q *quest.Quest) QuestSummary {
	return QuestSummary{
		Name:        q.Name,
		Title:       q.Title(),
		Objectives:  len(q.Objectives),
		Triggers:    len(q.Triggers),
		TakeEnabled: q.TakeEnabled,
	}
}

// List handles GET /api/admin/quests.
func (h *QuestHandler) List(c *gin.Context) {
	qs := h.svc.Quests()
	out := make([]QuestSummary, 0, len(qs))
	for _, q := range qs {
		out = append(out, summarize(q))
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// Get handles GET /api/admin/quests/:name.
func (h *QuestHandler) Get(c *gin.Context) {
	q, err := h.svc.Quest(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quest.EncodeQuest(q))
}

type createQuestRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /api/admin/quests.
func (h *QuestHandler) Create(c *gin.Context) {
	var req createQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.svc.CreateQuest(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quest.EncodeQuest(q))
}

// Put handles PUT /api/admin/quests/:name, replacing the whole definition.
func (h *QuestHandler) Put(c *gin.Context) {
	var doc quest.QuestDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if doc.Name == "" {
		doc.Name = c.Param("name")
	}
	if quest.FoldName(doc.Name) != quest.FoldName(c.Param("name")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name does not match path; use rename"})
		return
	}
	q, err := h.svc.PutQuest(c.Request.Context(), doc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quest.EncodeQuest(q))
}

type editRequest struct {
	Ops []EditOp `json:"ops" binding:"required,min=1,dive"`
}

// Edit handles PATCH /api/admin/quests/:name. The ops apply to a copy of
// the quest; nothing is stored unless every op succeeds.
func (h *QuestHandler) Edit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var results []EditResult
	q, err := h.svc.EditQuest(c.Request.Context(), c.Param("name"), func(q *quest.Quest) error {
		var err error
		results, err = applyEdits(q, req.Ops)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "quest": quest.EncodeQuest(q)})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename handles POST /api/admin/quests/:name/rename.
func (h *QuestHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.svc.RenameQuest(c.Request.Context(), c.Param("name"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("quest renamed",
		zap.String("from", c.Param("name")), zap.String("to", q.Name))
	c.JSON(http.StatusOK, quest.EncodeQuest(q))
}

// Delete handles DELETE /api/admin/quests/:name.
func (h *QuestHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteQuest(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type importRequest struct {
	Quests []quest.QuestDocument `json:"quests"`
}

// Import handles POST /api/admin/quests/import. With no documents in the
// body the configured quest directory is read instead.
func (h *QuestHandler) Import(c *gin.Context) {
	var req importRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	docs := req.Quests
	if len(docs) == 0 {
		if h.questDir == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no quests given and no quest directory configured"})
			return
		}
		var err error
		if docs, err = resource.NewLoader(h.questDir, h.logger).Load(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}
	imported, err := resource.Import(c.Request.Context(), h.svc, docs, h.logger)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusOf(err), gin.H{"error": err.Error(), "imported": imported})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

// Export handles POST /api/admin/quests/export, writing every quest to the
// quest directory.
func (h *QuestHandler) Export(c *gin.Context) {
	if h.questDir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no quest directory configured"})
		return
	}
	qs := h.svc.Quests()
	docs := make([]quest.QuestDocument, 0, len(qs))
	for _, q := range qs {
		docs = append(docs, quest.EncodeQuest(q))
	}
	if err := resource.Export(h.questDir, docs); err != nil {
		h.logger.Error("quest export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exported": len(docs), "dir": h.questDir})
}

// ForNPC handles GET /api/admin/npcs/:id/quests.
func (h *QuestHandler) ForNPC(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid npc id"})
		return
	}
	qs := h.svc.QuestsForNPC(id)
	out := make([]QuestSummary, 0, len(qs))
	for _, q := range qs {
		out = append(out, summarize(q))
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}
