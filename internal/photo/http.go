package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/logger"
	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/search"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes mounts photo operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}

	group.POST("/photos", handler.uploadPhoto)
	group.POST("/photo-records", handler.createRecord)
	group.GET("/photos", handler.listPhotos)
	group.GET("/search/photos", handler.searchPhotos)
	group.GET("/photos/:photoID", handler.getPhoto)
	group.PATCH("/photos/:photoID", handler.renamePhoto)
	group.DELETE("/photos/:photoID", handler.deletePhoto)

	group.PUT("/photos/:photoID/content", handler.replaceContent)
	group.POST("/photos/:photoID/retry", handler.retryStorage)
	group.GET("/photos/:photoID/download", handler.downloadPhoto)
	group.GET("/photos/:photoID/url", handler.presignedURL)
	group.POST("/photos/:photoID/backup", handler.backupPhoto)
	group.POST("/photos/:photoID/restore", handler.restorePhoto)
	group.POST("/photos/:photoID/encrypt", handler.encryptPhoto)
	group.POST("/photos/:photoID/decrypt", handler.decryptPhoto)
	group.PATCH("/photos/:photoID/status", handler.setStatus)

	registerLibraryRoutes(group, handler)
}

type httpHandler struct {
	service *Service
}

type createRecordRequest struct {
	Filename   string     `json:"filename" binding:"required,max=255"`
	Filepath   string     `json:"filepath" binding:"required,max=512"`
	Size       int64      `json:"size" binding:"min=0"`
	UploadDate *time.Time `json:"upload_date"`
}

type renameRequest struct {
	Filename string `json:"filename" binding:"required,max=255"`
}

type statusRequest struct {
	Axis   string `json:"axis" binding:"required,oneof=storage backup restore encryption"`
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

func (h *httpHandler) uploadPhoto(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer file.Close()

	p, err := h.service.Upload(c.Request.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		if errors.Is(err, ErrTransport) && p.ID != uuid.Nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store photo content", "photo": p})
			return
		}
		writeError(c, err, "failed to upload photo")
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *httpHandler) createRecord(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := CreateInput{Filename: req.Filename, Filepath: req.Filepath, Size: req.Size}
	if req.UploadDate != nil {
		in.UploadDate = req.UploadDate.UTC()
	}
	p, err := h.service.Create(c.Request.Context(), userID, in)
	if err != nil {
		writeError(c, err, "failed to create photo")
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *httpHandler) listPhotos(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	list, err := h.service.List(c.Request.Context(), userID, page)
	if err != nil {
		writeError(c, err, "failed to list photos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": nonNil(list)})
}

func (h *httpHandler) searchPhotos(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.service.Search(c.Request.Context(), userID, filter, page)
	if err != nil {
		writeError(c, err, "failed to search photos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": nonNil(list)})
}

func (h *httpHandler) getPhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	detail, err := h.service.GetWithMetadata(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to load photo")
		return
	}
	if detail.Tags == nil {
		detail.Tags = []catalog.Tag{}
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) renamePhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.Rename(c.Request.Context(), userID, photoID, req.Filename)
	if err != nil {
		writeError(c, err, "failed to update photo")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *httpHandler) deletePhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	removed, err := h.service.Delete(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to delete photo")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) replaceContent(c *gin.Context) {
	h.withUpload(c, h.service.ReplaceContent, "failed to replace photo content")
}

func (h *httpHandler) retryStorage(c *gin.Context) {
	h.withUpload(c, h.service.RetryStorage, "failed to retry photo storage")
}

type contentFunc func(ctx context.Context, ownerID, photoID uuid.UUID, r io.Reader) (catalog.Photo, error)

func (h *httpHandler) withUpload(c *gin.Context, fn contentFunc, failure string) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer file.Close()

	p, err := fn(c.Request.Context(), userID, photoID, file)
	if err != nil {
		writeError(c, err, failure)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *httpHandler) downloadPhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}

	p, reader, err := h.service.Download(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to download photo")
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(path.Ext(p.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Filename))
	c.Header("Content-Length", strconv.FormatInt(p.Size, 10))

	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.From(c).Warn("stream photo", zap.Stringer("photo_id", p.ID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
}

func (h *httpHandler) presignedURL(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	u, err := h.service.PresignedURL(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to generate download url")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *httpHandler) backupPhoto(c *gin.Context) {
	h.withPhoto(c, h.service.Backup, "failed to back up photo")
}

func (h *httpHandler) restorePhoto(c *gin.Context) {
	h.withPhoto(c, h.service.Restore, "failed to restore photo")
}

func (h *httpHandler) encryptPhoto(c *gin.Context) {
	h.withPhoto(c, h.service.Encrypt, "failed to encrypt photo")
}

func (h *httpHandler) decryptPhoto(c *gin.Context) {
	h.withPhoto(c, h.service.Decrypt, "failed to decrypt photo")
}

type photoFunc func(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error)

func (h *httpHandler) withPhoto(c *gin.Context, fn photoFunc, failure string) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	p, err := fn(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, failure)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *httpHandler) setStatus(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var (
		p   catalog.Photo
		err error
	)
	switch lifecycle.Axis(req.Axis) {
	case lifecycle.AxisStorage:
		var to lifecycle.StorageStatus
		if to, err = lifecycle.ParseStorageStatus(req.Status); err == nil {
			p, err = h.service.SetStorageStatus(ctx, userID, photoID, to, req.Reason)
		}
	case lifecycle.AxisBackup:
		var to lifecycle.BackupStatus
		if to, err = lifecycle.ParseBackupStatus(req.Status); err == nil {
			p, err = h.service.SetBackupStatus(ctx, userID, photoID, to, req.Path)
		}
	case lifecycle.AxisRestore:
		var to lifecycle.RestoreStatus
		if to, err = lifecycle.ParseRestoreStatus(req.Status); err == nil {
			p, err = h.service.SetRestoreStatus(ctx, userID, photoID, to)
		}
	case lifecycle.AxisEncryption:
		switch req.Status {
		case "encrypted":
			p, err = h.service.MarkEncrypted(ctx, userID, photoID, req.Method)
		case "none":
			p, err = h.service.MarkDecrypted(ctx, userID, photoID)
		default:
			err = fmt.Errorf("%w: unknown encryption status %q", lifecycle.ErrInvalidTransition, req.Status)
		}
	}
	if err != nil {
		writeError(c, err, "failed to update photo status")
		return
	}
	c.JSON(http.StatusOK, p)
}

// writeError maps service errors to HTTP responses.
func writeError(c *gin.Context, err error, failure string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, catalog.ErrUniqueViolation):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, quota.ErrQuotaExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "storage quota exceeded"})
	case errors.Is(err, ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, catalog.ErrIntegrityViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotStored), errors.Is(err, ErrEncryptedContent), errors.Is(err, ErrBackupDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEmptyUpload), errors.Is(err, ErrSizeMismatch), errors.Is(err, search.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEncryptionUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ErrTransport):
		logger.From(c).Warn(failure, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": failure})
	default:
		logger.From(c).Error(failure, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
	}
}

func photoParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}
	photoID, err := uuid.Parse(c.Param("photoID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, photoID, true
}

func parsePage(c *gin.Context) (search.Page, bool) {
	var page search.Page
	for name, dst := range map[string]*int{"skip": &page.Skip, "limit": &page.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return search.Page{}, false
		}
		*dst = v
	}
	return page, true
}

func parseFilter(c *gin.Context) (search.Filter, error) {
	var f search.Filter
	f.Tags = append(f.Tags, c.QueryArray("tag")...)
	if raw := c.Query("tags"); raw != "" {
		f.Tags = append(f.Tags, strings.Split(raw, ",")...)
	}
	if raw := c.Query("album_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return search.Filter{}, fmt.Errorf("invalid album_id")
		}
		f.AlbumID = &id
	}
	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		return search.Filter{}, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		return search.Filter{}, fmt.Errorf("invalid to: %w", err)
	}
	f.From, f.To = from, to
	f.FilenameSubstring = c.Query("q")
	return f, nil
}

// parseBound accepts RFC 3339 timestamps or plain dates. A plain upper bound covers the whole day.
func parseBound(raw string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
