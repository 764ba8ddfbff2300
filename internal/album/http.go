package album

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/logger"
	"github.com/abduss/photovault/internal/search"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes mounts album endpoints onto the router.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/albums", handler.createAlbum)
	group.GET("/albums", handler.listAlbums)
	group.GET("/albums/:albumID", handler.getAlbum)
	group.PATCH("/albums/:albumID", handler.updateAlbum)
	group.DELETE("/albums/:albumID", handler.deleteAlbum)
	group.GET("/albums/:albumID/photos", handler.listPhotos)
	group.POST("/albums/:albumID/photos", handler.addPhoto)
	group.DELETE("/albums/:albumID/photos/:photoID", handler.removePhoto)
}

type httpHandler struct {
	service *Service
}

type createAlbumRequest struct {
	Name         string     `json:"name" binding:"required,max=100"`
	Description  *string    `json:"description" binding:"omitempty,max=255"`
	CoverPhotoID *uuid.UUID `json:"cover_photo_id"`
}

type updateAlbumRequest struct {
	Name         *string    `json:"name" binding:"omitempty,max=100"`
	Description  *string    `json:"description" binding:"omitempty,max=255"`
	CoverPhotoID *uuid.UUID `json:"cover_photo_id"`
	ClearCover   bool       `json:"clear_cover"`
}

type addPhotoRequest struct {
	PhotoID uuid.UUID `json:"photo_id" binding:"required"`
}

func (h *httpHandler) createAlbum(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	album, err := h.service.Create(c.Request.Context(), userID, req.Name, req.Description, req.CoverPhotoID)
	if err != nil {
		writeError(c, err, "failed to create album")
		return
	}

	c.JSON(http.StatusCreated, album)
}

func (h *httpHandler) listAlbums(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	albums, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list albums")
		return
	}
	if albums == nil {
		albums = []catalog.Album{}
	}

	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

func (h *httpHandler) getAlbum(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}

	album, err := h.service.Get(c.Request.Context(), userID, albumID)
	if err != nil {
		writeError(c, err, "failed to fetch album")
		return
	}

	c.JSON(http.StatusOK, album)
}

func (h *httpHandler) updateAlbum(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}
	var req updateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	album, err := h.service.Update(c.Request.Context(), userID, albumID, UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		CoverPhoto:  req.CoverPhotoID,
		ClearCover:  req.ClearCover,
	})
	if err != nil {
		writeError(c, err, "failed to update album")
		return
	}
	c.JSON(http.StatusOK, album)
}

func (h *httpHandler) deleteAlbum(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}

	removed, err := h.service.Delete(c.Request.Context(), userID, albumID)
	if err != nil {
		writeError(c, err, "failed to delete album")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "album not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listPhotos(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}
	var page search.Page
	if raw := c.Query("skip"); raw != "" {
		page.Skip, _ = strconv.Atoi(raw)
	}
	if raw := c.Query("limit"); raw != "" {
		page.Limit, _ = strconv.Atoi(raw)
	}

	photos, err := h.service.Photos(c.Request.Context(), userID, albumID, page)
	if err != nil {
		writeError(c, err, "failed to list album photos")
		return
	}
	if photos == nil {
		photos = []catalog.Photo{}
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

func (h *httpHandler) addPhoto(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}
	var req addPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.AddPhoto(c.Request.Context(), userID, albumID, req.PhotoID); err != nil {
		writeError(c, err, "failed to add photo")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) removePhoto(c *gin.Context) {
	userID, albumID, ok := albumParams(c)
	if !ok {
		return
	}
	photoID, err := uuid.Parse(c.Param("photoID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	removed, err := h.service.RemovePhoto(c.Request.Context(), userID, albumID, photoID)
	if err != nil {
		writeError(c, err, "failed to remove photo")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not in album"})
		return
	}
	c.Status(http.StatusNoContent)
}

func albumParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}
	albumID, err := uuid.Parse(c.Param("albumID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid album id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, albumID, true
}

func writeError(c *gin.Context, err error, failure string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "album not found"})
	case errors.Is(err, catalog.ErrIntegrityViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "photo does not belong to album owner"})
	case errors.Is(err, ErrInvalidName), errors.Is(err, search.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.From(c).Error(failure, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
	}
}
