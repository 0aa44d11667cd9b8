package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler logs deferred errors and renders the last one when no
// response has been written yet. Errors carrying a StatusCode are mapped to
// their HTTP status; everything else is a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		status := http.StatusInternalServerError
		if err, ok := lastErr.Err.(interface{ StatusCode() int }); ok {
			status = err.StatusCode()
		}

		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: lastErr.Error(),
			TraceID: requestID,
		})
	}
}
