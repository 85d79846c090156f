package http

import (
	"errors"
	"net/http"

	"github.com/jhaanurag/remote-keyboard-web/internal/repository"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MissingFieldsMessage 是提交缺少必填字段时返回的错误信息
const MissingFieldsMessage = "roomCode, type and payload are required"

// HandleServiceError 把业务错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrRoomNotFound):
		ErrorResponse(c, http.StatusNotFound, "room not found")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
