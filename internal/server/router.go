package server

import (
	"github.com/abduss/photovault/internal/album"
	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/config"
	"github.com/abduss/photovault/internal/logger"
	"github.com/abduss/photovault/internal/metrics"
	"github.com/abduss/photovault/internal/photo"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router. DB and ObjectStore are only
// used by the readiness check and may be nil.
type Dependencies struct {
	Config       config.Config
	DB           pinger
	ObjectStore  bucketChecker
	AuthService  *auth.Service
	PhotoService *photo.Service
	AlbumService *album.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	metrics.InitMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metricsPath := deps.Config.Metrics.PrometheusPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	metrics.Register(router, metricsPath)

	api := router.Group("/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))
		auth.RegisterProtectedRoutes(protected, deps.AuthService)

		if deps.PhotoService != nil {
			photo.RegisterRoutes(protected, deps.PhotoService)
		}
		if deps.AlbumService != nil {
			album.RegisterRoutes(protected, deps.AlbumService)
		}
	}

	return router
}
