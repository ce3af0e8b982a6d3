package handlers

import (
	"fmt"
	"net/http"

	"model-repository-service/internal/adapters/primary/http/dto"
	"model-repository-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ListEndpoints(c *gin.Context) {
	trees, err := h.endpointSvc.ListEndpoints(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list endpoints failed")
		mapDomainError(c, err)
		return
	}

	items := make([]dto.EndpointTreeResponse, 0, len(trees))
	for _, t := range trees {
		items = append(items, dto.ToEndpointTreeResponse(t))
	}

	c.JSON(http.StatusOK, dto.ListEndpointsResponse{Items: items, Total: len(items)})
}

func (h *Handler) CreateEndpoint(c *gin.Context) {
	var req dto.CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Failure(err))
		return
	}

	if err := h.endpointSvc.Create(c.Request.Context(), req.Name); err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Success(fmt.Sprintf("endpoint %s created", req.Name)))
}

func (h *Handler) DeleteEndpoint(c *gin.Context) {
	name := c.Param("name")

	if err := h.endpointSvc.Delete(c.Request.Context(), name); err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(fmt.Sprintf("endpoint %s removed", name)))
}

func (h *Handler) ListVersions(c *gin.Context) {
	tree, err := h.endpointSvc.ListVersions(c.Request.Context(), c.Param("name"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEndpointTreeResponse(tree))
}

func (h *Handler) PublishVersion(c *gin.Context) {
	name := c.Param("name")

	id, err := h.endpointSvc.Publish(c.Request.Context(), name)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	version := domain.NewVersion(id)
	c.JSON(http.StatusCreated, dto.PublishResponse{
		MutationResponse: dto.Success(fmt.Sprintf("published %s of %s", version.Label, name)),
		Version:          dto.ToVersionResponse(version),
	})
}

func (h *Handler) DeleteVersion(c *gin.Context) {
	name := c.Param("name")

	id, err := domain.ParseVersionID(c.Param("ver"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	if err := h.endpointSvc.DeleteVersion(c.Request.Context(), name, id); err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Success(fmt.Sprintf("removed %s of %s", domain.VersionLabel(id), name)))
}

func (h *Handler) GetVersionInfo(c *gin.Context) {
	name := c.Param("name")

	id, err := domain.ParseVersionID(c.Param("ver"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	info, err := h.endpointSvc.Info(c.Request.Context(), name, id)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	switch c.DefaultQuery("output", "json") {
	case "text":
		c.String(http.StatusOK, info.Text())
	case "json":
		c.JSON(http.StatusOK, dto.ToInfoResponse(name, id, info))
	default:
		c.JSON(http.StatusBadRequest, dto.MutationResponse{Success: false, Message: "output must be text or json"})
	}
}

// GetVersionModel serves model.json of a version once its schema is checked.
func (h *Handler) GetVersionModel(c *gin.Context) {
	id, err := domain.ParseVersionID(c.Param("ver"))
	if err != nil {
		mapDomainError(c, err)
		return
	}

	artifact, err := h.endpointSvc.Model(c.Request.Context(), c.Param("name"), id)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func (h *Handler) GetHistory(c *gin.Context) {
	name := c.Param("name")

	events, err := h.endpointSvc.History(c.Request.Context(), name)
	if err != nil {
		log.WithError(err).WithField("endpoint", name).Error("read history failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToHistoryResponse(name, events))
}
