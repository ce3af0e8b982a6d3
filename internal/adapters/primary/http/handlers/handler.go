package handlers

import (
	"model-repository-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	endpointSvc *services.EndpointService
	archiveSvc  *services.ArchiveService
	buildSvc    *services.BuildService
}

func New(
	endpointSvc *services.EndpointService,
	archiveSvc *services.ArchiveService,
	buildSvc *services.BuildService,
) *Handler {
	return &Handler{
		endpointSvc: endpointSvc,
		archiveSvc:  archiveSvc,
		buildSvc:    buildSvc,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Endpoints
	r.GET("/endpoints", h.ListEndpoints)
	r.POST("/endpoints", h.CreateEndpoint)
	r.DELETE("/endpoints/:name", h.DeleteEndpoint)
	r.GET("/endpoints/:name/history", h.GetHistory)

	// Versions
	r.GET("/endpoints/:name/versions", h.ListVersions)
	r.POST("/endpoints/:name/versions", h.PublishVersion)
	r.DELETE("/endpoints/:name/versions/:ver", h.DeleteVersion)
	r.GET("/endpoints/:name/versions/:ver/info", h.GetVersionInfo)
	r.GET("/endpoints/:name/versions/:ver/model", h.GetVersionModel)

	// Archives
	r.POST("/endpoints/:name/export", h.ExportEndpoint)
	r.POST("/imports", h.ImportEndpoint)

	// Builds
	r.POST("/endpoints/:name/builds", h.BuildModel)
}
