package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/automation"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/domain/taxi"
	perrors "partybot-server-go/internal/platform/errors"
)

// APIResponse is the envelope of every API reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data any, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func RespondError(c *gin.Context, httpStatus int, message string, data any) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// respondErr maps err onto a status code and records it on the context.
func respondErr(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusOf(err)
	var data any
	if apiErr, ok := epic.AsAPIError(err); ok {
		data = gin.H{"errorCode": apiErr.ErrorCode, "upstreamStatus": apiErr.HTTPStatus}
	}
	RespondError(c, status, err.Error(), data)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, automation.ErrNotRunning), errors.Is(err, taxi.ErrNotRunning):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, stream.ErrNotEstablished):
		return http.StatusServiceUnavailable
	}
	if apiErr, ok := epic.AsAPIError(err); ok {
		if apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	switch perrors.KindOf(err) {
	case perrors.KindDomain, perrors.KindConfig:
		return http.StatusBadRequest
	case perrors.KindConflict:
		return http.StatusConflict
	case perrors.KindAuth:
		return http.StatusUnauthorized
	case perrors.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
