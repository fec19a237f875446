package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerXRequestID = "X-Request-ID"

// RequestID ensures every request carries a usable request id. A
// client-supplied X-Request-ID is kept only when it parses as a UUID;
// anything else is replaced with a fresh one. The id is exposed on the gin
// context for the access log and echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerXRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Writer.Header().Set(headerXRequestID, id)
		c.Next()
	}
}
