package handlers

import (
	"errors"
	"net/http"

	"model-repository-service/internal/adapters/primary/http/dto"
	"model-repository-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBackend):
		return http.StatusUnprocessableEntity
	default:
		// ErrIO, ErrConsistency and anything unclassified
		return http.StatusInternalServerError
	}
}

func mapDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && !isClassified(err) {
		c.JSON(status, dto.MutationResponse{Success: false, Message: "internal server error"})
		return
	}
	c.JSON(status, dto.Failure(err))
}

func isClassified(err error) bool {
	return errors.Is(err, domain.ErrIO) || errors.Is(err, domain.ErrConsistency)
}
