package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/http/dto"
	"synapse.app/ingest/internal/syncer"
)

type SyncRunner interface {
	RunAll(ctx context.Context) []*syncer.SourceResult
	RunAdapter(ctx context.Context, name string) (*syncer.SourceResult, error)
}

type SyncHandler struct {
	runner SyncRunner
}

func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// SyncAll forces one cycle of every adapter and returns a text summary.
// The cycle outlives the request once started.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	results := h.runner.RunAll(ctx)
	c.String(http.StatusOK, syncer.Summary(results))
}

func (h *SyncHandler) SyncAdapter(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.runner.RunAdapter(ctx, c.Param("adapter"))
	if err != nil {
		if errors.Is(err, adapter.ErrUnknownAdapter) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.String(http.StatusOK, syncer.Summary([]*syncer.SourceResult{res}))
}
