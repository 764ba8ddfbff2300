package photo

import (
	"net/http"
	"strconv"

	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/catalog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func registerLibraryRoutes(group *gin.RouterGroup, handler *httpHandler) {
	group.GET("/photos/:photoID/metadata", handler.getMetadata)
	group.POST("/photos/:photoID/metadata", handler.createMetadata)
	group.PATCH("/photos/:photoID/metadata", handler.updateMetadata)

	group.GET("/photos/:photoID/tags", handler.photoTags)
	group.POST("/photos/:photoID/tags", handler.tagPhoto)
	group.DELETE("/photos/:photoID/tags/:tagName", handler.untagPhoto)

	group.GET("/tags", handler.listTags)
	group.POST("/tags", handler.createTag)
	group.GET("/tags/:tagName/photos", handler.photosByTag)
	group.DELETE("/tags/:tagName", handler.deleteTag)

	group.POST("/metadata/batch", handler.createMetadataBatch)
	group.GET("/metadata/scenes/:scene", handler.photosByScene)
	group.GET("/metadata/faces", handler.photosWithFaces)
	group.GET("/metadata/aesthetic", handler.topAesthetic)

	group.GET("/stats/storage", handler.storageStats)
	group.GET("/stats/metadata", handler.metadataStats)
	group.GET("/backups/candidates", handler.backupCandidates)
	group.POST("/backups/run", handler.runBackups)
}

type metadataRequest struct {
	ColorProfile    *string  `json:"color_profile"`
	DominantColors  *string  `json:"dominant_colors"`
	FacesDetected   *int     `json:"faces_detected" binding:"omitempty,min=0"`
	FaceLocations   *string  `json:"face_locations"`
	SceneType       *string  `json:"scene_type" binding:"omitempty,max=50"`
	SceneConfidence *float64 `json:"scene_confidence" binding:"omitempty,min=0,max=1"`
	BlurScore       *float64 `json:"blur_score"`
	ExposureScore   *float64 `json:"exposure_score"`
	AestheticScore  *float64 `json:"aesthetic_score"`
}

func (r metadataRequest) patch() catalog.MetadataPatch {
	var p catalog.MetadataPatch
	setIf(&p.ColorProfile, r.ColorProfile)
	setIf(&p.DominantColors, r.DominantColors)
	setIf(&p.FacesDetected, r.FacesDetected)
	setIf(&p.FaceLocations, r.FaceLocations)
	setIf(&p.SceneType, r.SceneType)
	setIf(&p.SceneConfidence, r.SceneConfidence)
	setIf(&p.BlurScore, r.BlurScore)
	setIf(&p.ExposureScore, r.ExposureScore)
	setIf(&p.AestheticScore, r.AestheticScore)
	return p
}

func setIf[T any](dst *catalog.Field[*T], v *T) {
	if v != nil {
		*dst = catalog.Some(v)
	}
}

type metadataBatchRequest struct {
	Entries []struct {
		PhotoID uuid.UUID `json:"photo_id" binding:"required"`
		metadataRequest
	} `json:"entries" binding:"required,min=1,max=500,dive"`
}

type tagRequest struct {
	Name        string  `json:"name" binding:"required,max=50"`
	Description *string `json:"description" binding:"omitempty,max=255"`
}

func (h *httpHandler) getMetadata(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	meta, err := h.service.GetMetadata(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to load metadata")
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *httpHandler) createMetadata(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	meta, err := h.service.CreateMetadata(c.Request.Context(), userID, photoID, req.patch())
	if err != nil {
		writeError(c, err, "failed to create metadata")
		return
	}
	c.JSON(http.StatusCreated, meta)
}

func (h *httpHandler) createMetadataBatch(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req metadataBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries := make([]MetadataEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, MetadataEntry{PhotoID: e.PhotoID, Patch: e.patch()})
	}
	list, err := h.service.CreateMetadataBatch(c.Request.Context(), userID, entries)
	if err != nil {
		writeError(c, err, "failed to create metadata")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"metadata": nonNil(list)})
}

func (h *httpHandler) updateMetadata(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	meta, err := h.service.UpdateMetadata(c.Request.Context(), userID, photoID, req.patch())
	if err != nil {
		writeError(c, err, "failed to update metadata")
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *httpHandler) photoTags(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	tags, err := h.service.PhotoTags(c.Request.Context(), userID, photoID)
	if err != nil {
		writeError(c, err, "failed to list tags")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": nonNil(tags)})
}

func (h *httpHandler) tagPhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tag, err := h.service.TagPhoto(c.Request.Context(), userID, photoID, req.Name)
	if err != nil {
		writeError(c, err, "failed to tag photo")
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *httpHandler) untagPhoto(c *gin.Context) {
	userID, photoID, ok := photoParams(c)
	if !ok {
		return
	}
	removed, err := h.service.UntagPhoto(c.Request.Context(), userID, photoID, c.Param("tagName"))
	if err != nil {
		writeError(c, err, "failed to untag photo")
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "tag not attached"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listTags(c *gin.Context) {
	tags, err := h.service.ListTags(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list tags")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": nonNil(tags)})
}

func (h *httpHandler) createTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tag, err := h.service.EnsureTag(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err, "failed to create tag")
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *httpHandler) photosByTag(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}
	list, err := h.service.ListByTag(c.Request.Context(), userID, c.Param("tagName"), page)
	if err != nil {
		writeError(c, err, "failed to list photos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": nonNil(list)})
}

// deleteTag is limited to administrators; tags are shared by every user.
func (h *httpHandler) deleteTag(c *gin.Context) {
	_, user, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !user.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return
	}
	tag, err := h.service.GetTag(c.Request.Context(), c.Param("tagName"))
	if err != nil {
		writeError(c, err, "failed to delete tag")
		return
	}
	if _, err := h.service.DeleteTag(c.Request.Context(), tag.ID); err != nil {
		writeError(c, err, "failed to delete tag")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) photosByScene(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	minConfidence := DefaultSceneConfidence
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_confidence"})
			return
		}
		minConfidence = v
	}
	list, err := h.service.PhotosByScene(c.Request.Context(), userID, c.Param("scene"), minConfidence)
	if err != nil {
		writeError(c, err, "failed to query metadata")
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": nonNil(list)})
}

func (h *httpHandler) photosWithFaces(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	minFaces, ok := queryInt(c, "min_faces", 1)
	if !ok {
		return
	}
	list, err := h.service.PhotosWithFaces(c.Request.Context(), userID, minFaces)
	if err != nil {
		writeError(c, err, "failed to query metadata")
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": nonNil(list)})
}

func (h *httpHandler) topAesthetic(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, ok := queryInt(c, "limit", DefaultTopAesthetic)
	if !ok {
		return
	}
	list, err := h.service.TopAesthetic(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err, "failed to query metadata")
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": nonNil(list)})
}

func (h *httpHandler) storageStats(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	st, err := h.service.StorageStats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to compute storage stats")
		return
	}
	c.JSON(http.StatusOK, st)
}

// metadataStats covers every user for administrators who pass all=true.
func (h *httpHandler) metadataStats(c *gin.Context) {
	userID, user, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	scope := userID
	if user.IsAdmin && c.Query("all") == "true" {
		scope = uuid.Nil
	}
	st, err := h.service.MetadataStats(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err, "failed to compute metadata stats")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *httpHandler) backupCandidates(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	list, err := h.service.BackupCandidates(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err, "failed to list backup candidates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": nonNil(list)})
}

func (h *httpHandler) runBackups(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	report, err := h.service.RunBackups(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to run backups")
		return
	}
	c.JSON(http.StatusOK, report)
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
