package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMapping сопоставление ошибок сервиса HTTP ответам
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrInvalidURL, http.StatusBadRequest, "invalid_url"},
	{service.ErrInvalidExpiry, http.StatusBadRequest, "invalid_expiry"},
	{service.ErrInvalidFile, http.StatusBadRequest, "invalid_file"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrTrialUnavailable, http.StatusConflict, "trial_unavailable"},
	{service.ErrAccountConflict, http.StatusConflict, "account_conflict"},
	{service.ErrStorage, http.StatusServiceUnavailable, "storage_unavailable"},
	{service.ErrCodeSpaceExhausted, http.StatusServiceUnavailable, "code_space_exhausted"},
}

// respondError пишет ErrorResponse. Неизвестные ошибки наружу не раскрываются.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				logger.Error("Request failed", zap.String("request_id", middleware.RequestID(c)), zap.Error(err))
				c.Header("Retry-After", "1")
				c.JSON(m.status, ErrorResponse{Error: m.code, Message: m.err.Error()})
				return
			}
			c.JSON(m.status, ErrorResponse{Error: m.code, Message: err.Error()})
			return
		}
	}

	logger.Error("Unexpected error", zap.String("request_id", middleware.RequestID(c)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Внутренняя ошибка сервера",
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}
