package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/fileshare/internal/app"
	"github.com/SergeiKhy/fileshare/internal/config"
	"github.com/SergeiKhy/fileshare/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	sc, err := app.New(startCtx, cfg, zlog, app.Options{})
	cancelStart()
	if err != nil {
		zlog.Fatal("Failed to initialise services", zap.Error(err))
	}
	defer sc.Close()

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      sc.Router,
		ReadTimeout:  60 * time.Second, // загрузка файлов
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		zlog.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("db_driver", cfg.DB.Driver),
			zap.String("auth_mode", cfg.Auth.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited")
}
