package handlers

import (
	"fmt"
	"net/http"

	"model-repository-service/internal/adapters/primary/http/dto"
	"model-repository-service/internal/core/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) BuildModel(c *gin.Context) {
	name := c.Param("name")

	var req dto.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Failure(err))
		return
	}

	report, err := h.buildSvc.Run(c.Request.Context(), name, req.DatasetPath, services.BuildOverrides{
		Algorithm: req.Algorithm,
		Workers:   req.Workers,
	})
	if err != nil {
		log.WithError(err).WithField("endpoint", name).Warn("build failed")
		// a failed learn run still has a trace worth returning
		if report != nil && report.Outcome != nil {
			c.JSON(statusFor(err), dto.ToBuildResponse(report, dto.Failure(err)))
			return
		}
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToBuildResponse(report, dto.Success(fmt.Sprintf("model built for %s", name))))
}
