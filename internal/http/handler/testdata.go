package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/http/dto"
	"synapse.app/ingest/internal/service"
)

type TestDataHandler struct {
	service service.TestDataService
}

func NewTestDataHandler(service service.TestDataService) *TestDataHandler {
	return &TestDataHandler{service: service}
}

func (h *TestDataHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.TestDataQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	results, err := h.service.Generate(ctx, q.Source, q.Count)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTestSource) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to generate test data", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to generate test data"})
		return
	}
	c.JSON(http.StatusOK, results)
}
