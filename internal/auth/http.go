package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/logger"
	"github.com/abduss/photovault/internal/quota"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the public authentication endpoints under /auth.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", handler.register)
		authGroup.POST("/login", handler.login)
		authGroup.POST("/refresh", handler.refresh)
	}
}

// RegisterProtectedRoutes mounts endpoints that require a valid access token.
func RegisterProtectedRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	router.POST("/auth/logout", handler.logout)
	router.GET("/me", handler.profile)
	router.PATCH("/me/settings", handler.updateSettings)
}

type httpHandler struct {
	service *Service
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type settingsRequest struct {
	StorageQuota        *int64 `json:"storage_quota" binding:"omitempty,min=0"`
	EncryptionEnabled   *bool  `json:"encryption_enabled"`
	BackupEnabled       *bool  `json:"backup_enabled"`
	BackupFrequencyDays *int   `json:"backup_frequency_days" binding:"omitempty,min=1"`
}

type authResponse struct {
	User struct {
		ID           string     `json:"id"`
		Username     string     `json:"username"`
		Email        string     `json:"email"`
		IsAdmin      bool       `json:"is_admin"`
		StorageQuota int64      `json:"storage_quota"`
		StorageUsed  int64      `json:"storage_used"`
		CreatedAt    *time.Time `json:"created_at,omitempty"`
	} `json:"user"`
	Tokens struct {
		AccessToken        string `json:"access_token"`
		AccessTokenExpiry  int64  `json:"access_token_expires_at"`
		RefreshToken       string `json:"refresh_token"`
		RefreshTokenExpiry int64  `json:"refresh_token_expires_at"`
	} `json:"tokens"`
}

func (h *httpHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountExists):
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already registered"})
		case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.From(c).Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, marshalAuthResponse(result))
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		logger.From(c).Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	c.JSON(http.StatusOK, marshalAuthResponse(result))
}

func (h *httpHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
			return
		}
		logger.From(c).Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh tokens"})
		return
	}

	c.JSON(http.StatusOK, marshalAuthResponse(result))
}

func (h *httpHandler) logout(c *gin.Context) {
	userID, _, ok := RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Logout(c.Request.Context(), userID, req.RefreshToken); err != nil {
		logger.From(c).Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to logout"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) profile(c *gin.Context) {
	userID, _, ok := RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logger.From(c).Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) updateSettings(c *gin.Context) {
	userID, _, ok := RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.UpdateSettings(c.Request.Context(), userID, SettingsInput{
		StorageQuota:        req.StorageQuota,
		EncryptionEnabled:   req.EncryptionEnabled,
		BackupEnabled:       req.BackupEnabled,
		BackupFrequencyDays: req.BackupFrequencyDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, quota.ErrQuotaExceeded):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quota is below current usage"})
		case errors.Is(err, ErrInvalidSettings), errors.Is(err, catalog.ErrIntegrityViolation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.From(c).Error("update settings failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update settings"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

func marshalAuthResponse(result AuthResult) authResponse {
	resp := authResponse{}
	resp.User.ID = result.User.ID.String()
	resp.User.Username = result.User.Username
	resp.User.Email = result.User.Email
	resp.User.IsAdmin = result.User.IsAdmin
	resp.User.StorageQuota = result.User.StorageQuota
	resp.User.StorageUsed = result.User.StorageUsed
	if !result.User.CreatedAt.IsZero() {
		created := result.User.CreatedAt.UTC()
		resp.User.CreatedAt = &created
	}
	resp.Tokens.AccessToken = result.Tokens.AccessToken
	resp.Tokens.RefreshToken = result.Tokens.RefreshToken
	resp.Tokens.AccessTokenExpiry = result.Tokens.AccessTokenExpiry.Unix()
	resp.Tokens.RefreshTokenExpiry = result.Tokens.RefreshTokenExpiry.Unix()
	return resp
}
