package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	mongorepo "github.com/omnihear/omnihear/internal/repositories/mongo"
	pgrepo "github.com/omnihear/omnihear/internal/repositories/postgres"
	"github.com/omnihear/omnihear/internal/utils"
)

// HistoryHandler serves past dispatches. Records come from Postgres;
// transcripts and output texts live in the Mongo archive until their TTL.
type HistoryHandler struct {
	records pgrepo.DispatchRepository
	archive mongorepo.ArchiveRepository
}

func NewHistoryHandler(records pgrepo.DispatchRepository, archive mongorepo.ArchiveRepository) *HistoryHandler {
	return &HistoryHandler{records: records, archive: archive}
}

// List handles GET /history?limit=n.
func (h *HistoryHandler) List(c *gin.Context) {
	const op = "HistoryHandler.List"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.records.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to list history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatches": rows})
}

// Archive handles GET /history/:dispatch_id/archive.
func (h *HistoryHandler) Archive(c *gin.Context) {
	const op = "HistoryHandler.Archive"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	dispatchID := c.Param("dispatch_id")
	if dispatchID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing dispatch_id", nil))
		return
	}

	rec, err := h.records.GetByDispatchID(c.Request.Context(), dispatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(c, utils.E(utils.CodeNotFound, op, "dispatch not found", err))
			return
		}
		writeError(c, utils.E(utils.CodeInternal, op, "failed to load dispatch", err))
		return
	}
	if rec.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return
	}

	doc, err := h.archive.GetByDispatchID(c.Request.Context(), dispatchID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeError(c, utils.E(utils.CodeNotFound, op, "archived texts expired or missing", err))
			return
		}
		writeError(c, utils.E(utils.CodeInternal, op, "failed to load archive", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispatch_id": doc.DispatchID,
		"mode":        doc.Mode,
		"transcript":  doc.Transcript,
		"output_text": doc.OutputText,
		"stale":       doc.Stale,
		"created_at":  doc.CreatedAt,
		"expires_at":  doc.ExpiresAt,
	})
}
