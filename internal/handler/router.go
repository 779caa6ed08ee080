package handler

import (
	"net/http"
	"time"

	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/SergeiKhy/fileshare/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services зависимости маршрутов, собираются в main
type Services struct {
	Links  service.LinkService
	Trials service.TrialService
	Files  service.FileService
	// Local не nil только для локального хранилища: тогда регистрируется маршрут скачивания
	Local *storage.Local
	// GroupSync очередь переносов групп, отдаёт статистику в /admin/stats
	GroupSync StatsSource
}

// StatsSource источник статистики worker pool
type StatsSource interface {
	Stats() service.ChannelStats
}

type RouterConfig struct {
	BaseURL        string
	MaxUploadBytes int64
	AllowedOrigins []string
	Auth           gin.HandlerFunc
	Admin          gin.HandlerFunc
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.Logger(logger))
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	// Rate limiting для всех запросов
	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(svc.Links, cfg.BaseURL, logger)
	trialHandler := NewTrialHandler(svc.Trials, logger)
	fileHandler := NewFileHandler(svc.Files, cfg.MaxUploadBytes, logger)
	adminHandler := NewAdminHandler(svc.Trials, svc.Links, svc.GroupSync, logger)

	// Публичные маршруты
	router.GET("/s/:code", linkHandler.Redirect)
	if svc.Local != nil {
		router.GET(storage.DownloadPath, NewDownloadHandler(svc.Local, logger).Download)
	}

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)
		v1.GET("/links/:code", linkHandler.Resolve)
	}

	user := v1.Group("")
	user.Use(cfg.Auth)
	// Отдельный бюджет на каждого пользователя по subject токена
	if cfg.RateLimiter != nil {
		user.Use(cfg.RateLimiter.MiddlewareWithKey(middleware.SubjectKey))
	}
	{
		user.GET("/me", trialHandler.Me)

		user.POST("/files", fileHandler.Upload)
		user.GET("/files", fileHandler.List)
		user.DELETE("/files/:name", fileHandler.Delete)
		user.GET("/files/:name/link", fileHandler.Link)

		user.POST("/links", linkHandler.CreateLink)
		user.GET("/links", linkHandler.ListLinks)
		user.DELETE("/links/:code", linkHandler.DeleteLink)

		user.GET("/trial/status", trialHandler.Status)
		user.GET("/trial/eligibility", trialHandler.Eligibility)
		user.POST("/trial/start", trialHandler.Start)
		user.POST("/upgrade", trialHandler.Upgrade)
	}

	admin := v1.Group("/admin")
	admin.Use(cfg.Admin)
	{
		admin.POST("/trials/expire", adminHandler.ExpireTrials)
		admin.GET("/trials/expiring", adminHandler.ExpiringTrials)
		admin.GET("/stats", adminHandler.Stats)
		admin.POST("/links/sweep", adminHandler.SweepLinks)
		admin.GET("/users", adminHandler.FindUser)
	}

	return router
}

// HealthCheck GET /api/v1/health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
