package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepmed-backend/internal/http/response"
	"github.com/yungbote/deepmed-backend/internal/validation"
)

type ValidateHandler struct {
	v *validation.Validator
}

func NewValidateHandler(v *validation.Validator) *ValidateHandler { return &ValidateHandler{v: v} }

type validateRequest struct {
	// Pointer so a missing answer is distinguishable from an empty one.
	Answer *string `json:"answer"`
}

// POST /api/validate
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	r := h.v.Validate(req.Answer)
	response.RespondOK(c, validation.SuggestedResult{Result: r, Suggestion: validation.Suggestion(r.Reason)})
}
