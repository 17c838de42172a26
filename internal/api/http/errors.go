package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/filesystem"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	var fe *filesystem.Error
	if errors.As(err, &fe) && fe.TooLarge {
		return http.StatusRequestEntityTooLarge
	}
	switch filesystem.KindOf(err) {
	case filesystem.KindPathTraversal, filesystem.KindValidation, filesystem.KindInvalidOperation:
		return http.StatusBadRequest
	case filesystem.KindNotFound:
		return http.StatusNotFound
	case filesystem.KindForbidden:
		return http.StatusForbidden
	case filesystem.KindAlreadyExists:
		return http.StatusConflict
	case filesystem.KindPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an OperationResult body. Only the sanitized message
// reaches the client; the wrapped cause goes to the log.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log(c).Error("file operation failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, filesystem.Failure(err))
}

// badRequest reports malformed input that never reached the engine.
func (h *Handlers) badRequest(c *gin.Context, message string, details ...string) {
	if len(details) == 0 {
		details = []string{message}
	}
	c.JSON(http.StatusBadRequest, &filesystem.OperationResult{
		Success:   false,
		Message:   message,
		Errors:    details,
		ErrorKind: filesystem.KindValidation,
	})
}
