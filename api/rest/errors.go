package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questforge/game/quest"
)

// statusOf maps a quest error code to an HTTP status.
func statusOf(err error) int {
	switch quest.CodeOf(err) {
	case quest.CodeValidation:
		return http.StatusBadRequest
	case quest.CodeStateConflict:
		return http.StatusConflict
	case quest.CodeNotFound:
		return http.StatusNotFound
	case quest.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status matching its code. Errors
// without a code are reported as internal errors and not echoed.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": quest.CodeOf(err)})
}
