package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr picks the status from the error's sentinel; anything unrecognised is a 500 with a generic
// message so internals do not leak.
func RespondErr(c *gin.Context, fallbackCode string, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrUnknownQueue):
		RespondError(c, http.StatusNotFound, "unknown_queue", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	default:
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, fallbackCode, errors.New("internal error"))
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
