package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/http/response"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
)

// ChunkStore is the part of the chunk repo the availability routes use.
type ChunkStore interface {
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID, onlyAvailable bool) ([]*types.Chunk, error)
	SetAvailable(dbc dbctx.Context, ids []uuid.UUID, available bool) error
}

type ChunkHandler struct {
	chunks ChunkStore
}

func NewChunkHandler(chunks ChunkStore) *ChunkHandler { return &ChunkHandler{chunks: chunks} }

// GET /api/documents/:id/chunks?available=true
func (h *ChunkHandler) ListForDocument(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	onlyAvailable := false
	if raw := c.Query("available"); raw != "" {
		if onlyAvailable, err = strconv.ParseBool(raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	chunks, err := h.chunks.GetByDocumentID(dbctx.Context{Ctx: c.Request.Context()}, docID, onlyAvailable)
	if err != nil {
		response.RespondErr(c, "list_chunks_failed", err)
		return
	}
	if chunks == nil {
		chunks = []*types.Chunk{}
	}
	response.RespondOK(c, gin.H{"chunks": chunks, "count": len(chunks)})
}

type availabilityRequest struct {
	ChunkIDs  []string `json:"chunkIds" binding:"required,min=1,max=1000,dive,uuid"`
	Available *bool    `json:"available" binding:"required"`
}

// PATCH /api/chunks/availability
func (h *ChunkHandler) SetAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(req.ChunkIDs))
	for _, raw := range req.ChunkIDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	if err := h.chunks.SetAvailable(dbctx.Context{Ctx: c.Request.Context()}, ids, *req.Available); err != nil {
		response.RespondErr(c, "set_availability_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chunkIds": req.ChunkIDs, "available": *req.Available})
}
