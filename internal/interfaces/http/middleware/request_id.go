package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/apikeyd/pkg/constants"
)

// maxRequestIDLength bounds a caller supplied request id.
const maxRequestIDLength = 128

// RequestID propagates the caller's X-Request-ID or assigns a new one. The id
// is echoed in the response, stored on the gin context and placed on the
// request context so log lines carry it.
// RequestID 透传或生成请求 ID，并写入响应头与请求上下文。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Set(string(constants.ContextKeyRequestID), id)
		c.Writer.Header().Set(constants.HeaderRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, empty when the middleware did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyRequestID))
}
