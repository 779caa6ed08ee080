package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler административные операции под X-API-Key
type AdminHandler struct {
	trials service.TrialService
	links  service.LinkService
	stats  StatsSource
	logger *zap.Logger
}

const defaultReminderDays = 3

func NewAdminHandler(trials service.TrialService, links service.LinkService, stats StatsSource, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{trials: trials, links: links, stats: stats, logger: logger}
}

// ExpireTrials POST /api/v1/admin/trials/expire[?as_of=RFC3339]
func (h *AdminHandler) ExpireTrials(c *gin.Context) {
	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_as_of",
				Message: "as_of must be an RFC3339 timestamp",
			})
			return
		}
		asOf = t.UTC()
	}

	report, err := h.trials.ProcessExpiredTrials(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Trial expiry triggered",
		zap.String("key", middleware.AdminKeyName(c)),
		zap.Int("expired", report.ExpiredCount),
	)
	c.JSON(http.StatusOK, report)
}

// ExpiringTrials GET /api/v1/admin/trials/expiring?days=3
func (h *AdminHandler) ExpiringTrials(c *gin.Context) {
	days := defaultReminderDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_days",
				Message: "days must be an integer",
			})
			return
		}
		days = n
	}

	reminders, err := h.trials.ExpiringTrials(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "trials": reminders, "count": len(reminders)})
}

// Stats GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	resp := gin.H{}
	if h.stats != nil {
		resp["group_sync"] = h.stats.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

// SweepLinks POST /api/v1/admin/links/sweep
func (h *AdminHandler) SweepLinks(c *gin.Context) {
	removed, err := h.links.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Link sweep triggered", zap.String("key", middleware.AdminKeyName(c)))
	c.JSON(http.StatusOK, gin.H{"deleted_count": removed})
}

// FindUser GET /api/v1/admin/users?email=
func (h *AdminHandler) FindUser(c *gin.Context) {
	status, err := h.trials.FindByEmail(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
