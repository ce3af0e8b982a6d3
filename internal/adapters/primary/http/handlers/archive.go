package handlers

import (
	"fmt"
	"net/http"

	"model-repository-service/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ExportEndpoint(c *gin.Context) {
	name := c.Param("name")

	path, err := h.archiveSvc.Export(c.Request.Context(), name)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ExportResponse{
		MutationResponse: dto.Success(fmt.Sprintf("endpoint %s exported", name)),
		Path:             path,
	})
}

func (h *Handler) ImportEndpoint(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Failure(err))
		return
	}

	name, err := h.archiveSvc.Import(c.Request.Context(), req.Path)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ImportResponse{
		MutationResponse: dto.Success(fmt.Sprintf("endpoint %s imported", name)),
		Endpoint:         name,
	})
}
