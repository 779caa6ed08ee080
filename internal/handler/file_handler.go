package handler

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/SergeiKhy/fileshare/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead запас на заголовки multipart поверх размера файла
const multipartOverhead = 1 << 20

type FileHandler struct {
	service   service.FileService
	maxUpload int64
	logger    *zap.Logger
}

func NewFileHandler(service service.FileService, maxUpload int64, logger *zap.Logger) *FileHandler {
	return &FileHandler{service: service, maxUpload: maxUpload, logger: logger}
}

// Upload POST /api/v1/files, multipart поле "file"
func (h *FileHandler) Upload(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		badRequest(c, err)
		return
	}
	if fh.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	info, err := h.service.Upload(c.Request.Context(), claims, fh.Filename, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// List GET /api/v1/files
func (h *FileHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	files, err := h.service.List(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

// Delete DELETE /api/v1/files/:name
func (h *FileHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims, c.Param("name")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Link GET /api/v1/files/:name/link
func (h *FileHandler) Link(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	link, err := h.service.DownloadLink(c.Request.Context(), claims, c.Param("name"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *FileHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "file_too_large",
		Message: "Файл превышает допустимый размер",
	})
}

// DownloadHandler отдаёт файлы локального хранилища по подписанной ссылке
type DownloadHandler struct {
	store  *storage.Local
	logger *zap.Logger
}

func NewDownloadHandler(store *storage.Local, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{store: store, logger: logger}
}

// Download GET /files/download?token=
func (h *DownloadHandler) Download(c *gin.Context) {
	path, err := h.store.Open(c.Query("token"))
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrInvalidToken), errors.Is(err, storage.ErrInvalidKey):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_token",
			Message: "Ссылка недействительна или истекла",
		})
		return
	case errors.Is(err, storage.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "File not found",
		})
		return
	default:
		h.logger.Error("Failed to open object", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}
