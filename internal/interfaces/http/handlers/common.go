package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/healthsync/hybrid-engine/pkg/errors"
)

// ErrorResponse is the error body returned on every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps an engine error to its HTTP status and serializes the
// structured body.  Non-AppError values surface as a masked internal error.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	resp := ErrorResponse{
		Code:    string(code),
		Message: errors.DefaultMessageForCode(code),
	}

	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Message = ae.Message
		if errors.IsClientError(code) {
			resp.Detail = ae.Detail
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), resp)
}
