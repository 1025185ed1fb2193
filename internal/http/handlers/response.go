// Package handlers contains the Gin HTTP handlers for the local POS API.
//
// Handlers depend on narrow, handler-side interfaces rather than concrete
// services, which keeps them trivially testable with fakes. All error
// responses share one JSON envelope with a stable machine-readable code and
// the request correlation ID.
package handlers

import "github.com/gin-gonic/gin"

// ErrorResponse is the uniform JSON error envelope.
//
// Fields:
//   - RequestID: correlation ID from the X-Request-ID header/middleware.
//   - Code: stable machine-readable error code (snake_case).
//   - Message: human-readable description, safe to display.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Fail writes the error envelope with the given status and aborts the
// chain. Exported so the router can reuse it for NoRoute/NoMethod.
func Fail(c *gin.Context, status int, code, message string) {
	rid := c.Writer.Header().Get("X-Request-ID")
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: rid,
		Code:      code,
		Message:   message,
	})
}

// ok writes a JSON payload with the given success status.
func ok(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// noContent writes an empty 204 response.
func noContent(c *gin.Context) {
	c.Status(204)
}
