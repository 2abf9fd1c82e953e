package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/apikeyd/internal/interfaces/http/middleware"
	"github.com/turtacn/apikeyd/pkg/errors"
)

// SendError writes err as a JSON error body. The status comes from the
// APIError, 500 for anything else.
func SendError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if apiErr, ok := errors.AsAPIError(err); ok {
		status = apiErr.HTTPStatus()
	}
	_ = c.Error(err)

	resp := errors.ToGenericErrorResponse(err)
	resp.RequestID = middleware.GetRequestID(c)
	c.AbortWithStatusJSON(status, resp)
}
