package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/pkg/logger"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Kind    string                 `json:"kind,omitempty"`
	Hint    string                 `json:"hint,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusFor maps a failure kind to an HTTP status code.
func StatusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.Precondition:
		return http.StatusConflict
	case failure.Bootstrap, failure.Launch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the body for err.
func NewErrorResponse(err error, details map[string]interface{}) ErrorResponse {
	resp := ErrorResponse{
		Error:   err.Error(),
		Kind:    failure.KindOf(err).String(),
		Details: details,
	}
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Hint != "" {
		resp.Error = fe.Message
		if fe.Err != nil {
			resp.Error += ": " + fe.Err.Error()
		}
		resp.Hint = fe.Hint
	}
	return resp
}

// RespondError writes err with the given status (0 picks one from the failure kind) and
// records it on the context for the logger.
func RespondError(c *gin.Context, status int, err error, details map[string]interface{}) {
	if status == 0 {
		status = StatusFor(err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(err, details))
}

// ErrorHandler is a middleware that catches panics and errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				logger.Error("Panic recovered", err, map[string]interface{}{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error: "An unexpected error occurred",
					Kind:  failure.Internal.String(),
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		fields := map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"kind":   failure.KindOf(err.Err).String(),
		}
		if failure.KindOf(err.Err) == failure.Internal {
			logger.Error("Request error", err.Err, fields)
		} else {
			fields["error"] = err.Error()
			logger.Debug("Request failed", fields)
		}

		if !c.Writer.Written() {
			status := StatusFor(err.Err)
			if err.IsType(gin.ErrorTypeBind) {
				status = http.StatusBadRequest
			}
			c.JSON(status, NewErrorResponse(err.Err, nil))
		}
	}
}
