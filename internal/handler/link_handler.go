package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		baseURL: baseURL,
		logger:  logger,
	}
}

type CreateLinkRequest struct {
	TargetURL     string `json:"target_url" binding:"required"`
	ResourceKey   string `json:"resource_key,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
}

type CreateLinkResponse struct {
	ShortCode string     `json:"short_code"`
	ShortURL  string     `json:"short_url"`
	Created   bool       `json:"created"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateLink POST /api/v1/links. Владелец ссылки - пользователь из токена.
func (h *LinkHandler) CreateLink(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		badRequest(c, err)
		return
	}

	res, err := h.service.CreateLink(c.Request.Context(), &models.CreateLinkInput{
		TargetURL:     req.TargetURL,
		Owner:         claims.Identity(),
		ResourceKey:   req.ResourceKey,
		DisplayName:   req.DisplayName,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	c.JSON(status, CreateLinkResponse{
		ShortCode: res.Code,
		ShortURL:  h.baseURL + "/s/" + res.Code,
		Created:   res.Created,
		ExpiresAt: res.ExpiresAt,
	})
}

// Redirect GET /s/:code
func (h *LinkHandler) Redirect(c *gin.Context) {
	link, err := h.service.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, link.TargetURL)
}

// Resolve GET /api/v1/links/:code, засчитывает переход как и редирект
func (h *LinkHandler) Resolve(c *gin.Context) {
	link, err := h.service.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// ListLinks GET /api/v1/links?limit=N
func (h *LinkHandler) ListLinks(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	links, err := h.service.ListForOwner(c.Request.Context(), claims.Identity(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

// DeleteLink DELETE /api/v1/links/:code. Чужая ссылка неотличима от отсутствующей.
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	code := c.Param("code")

	deleted, err := h.service.DeleteLink(c.Request.Context(), code, claims.Identity())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// requireClaims claims из Auth middleware; без них запрос отклоняется
func requireClaims(c *gin.Context) (*models.Claims, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
		})
		return nil, false
	}
	return claims, true
}
