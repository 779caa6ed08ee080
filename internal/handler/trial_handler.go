package handler

import (
	"net/http"

	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TrialHandler struct {
	service service.TrialService
	logger  *zap.Logger
}

func NewTrialHandler(service service.TrialService, logger *zap.Logger) *TrialHandler {
	return &TrialHandler{service: service, logger: logger}
}

// Status GET /api/v1/trial/status
func (h *TrialHandler) Status(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Eligibility GET /api/v1/trial/eligibility
func (h *TrialHandler) Eligibility(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	elig, err := h.service.ValidateEligibility(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, elig)
}

// Start POST /api/v1/trial/start. Повторный старт: 409.
func (h *TrialHandler) Start(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	res, err := h.service.StartTrial(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upgrade POST /api/v1/upgrade
func (h *TrialHandler) Upgrade(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	upgraded, err := h.service.UpgradeToPremium(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": upgraded})
}

// Me GET /api/v1/me: атрибуты токена и состояние аккаунта
func (h *TrialHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  claims.Subject,
		"identity": claims.Identity(),
		"groups":   claims.Groups,
		"account":  status,
	})
}
