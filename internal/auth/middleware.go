package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userContextKey = "photovaultUser"

// ContextUser represents the authenticated principal stored in the request context.
type ContextUser struct {
	ID       uuid.UUID
	Username string
	Email    string
	IsAdmin  bool
}

// AuthMiddleware validates bearer tokens and injects the authenticated user.
func AuthMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing or malformed bearer token")
			return
		}

		claims, err := service.ValidateAccessToken(token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(userContextKey, ContextUser{
			ID:       claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
			IsAdmin:  claims.IsAdmin,
		})
		c.Next()
	}
}

// CurrentUser extracts the authenticated user from the context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return ContextUser{}, false
	}
	user, ok := value.(ContextUser)
	return user, ok && user.ID != uuid.Nil
}

// RequireUser returns the authenticated user and its id.
func RequireUser(c *gin.Context) (uuid.UUID, ContextUser, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		return uuid.Nil, ContextUser{}, false
	}
	return user.ID, user, true
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="photovault"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
