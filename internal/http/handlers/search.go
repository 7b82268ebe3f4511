package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/http/response"
	"github.com/yungbote/deepmed-backend/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) []retrieval.Candidate
}

type SearchHandler struct {
	search Searcher
}

func NewSearchHandler(s Searcher) *SearchHandler { return &SearchHandler{search: s} }

type searchRequest struct {
	KnowledgeBaseID string `json:"knowledgeBaseId" binding:"required,uuid"`
	Query           string `json:"query" binding:"required"`
	Limit           int    `json:"limit" binding:"omitempty,min=1,max=100"`
	UserID          string `json:"userId" binding:"omitempty,uuid"`
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	q := retrieval.Query{
		KBID:  uuid.MustParse(req.KnowledgeBaseID),
		Text:  strings.TrimSpace(req.Query),
		Limit: req.Limit,
	}
	if req.UserID != "" {
		q.UserID = uuid.MustParse(req.UserID)
	}
	results := h.search.Search(c.Request.Context(), q)
	if results == nil {
		results = []retrieval.Candidate{}
	}
	response.RespondOK(c, gin.H{"results": results, "count": len(results)})
}
