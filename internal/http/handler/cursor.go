package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/http/dto"
)

type CursorAdmin interface {
	Peek(ctx context.Context, key cursor.Key) (cursor.Position, bool, error)
	Clear(ctx context.Context, key cursor.Key) error
	ClearAll(ctx context.Context) error
}

type CursorHandler struct {
	cursors CursorAdmin
}

func NewCursorHandler(cursors CursorAdmin) *CursorHandler {
	return &CursorHandler{cursors: cursors}
}

func (h *CursorHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.CursorQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "source and scope are required"})
		return
	}
	key := cursor.Key{Source: q.Source, Scope: q.Scope}

	pos, ok, err := h.cursors.Peek(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read cursor", "cursor", key.String(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to read cursor"})
		return
	}

	resp := dto.CursorResponse{Source: key.Source, Scope: key.Scope, Exists: ok}
	if ok {
		t := pos.Time
		resp.Time = &t
		resp.Token = pos.Token
	}
	c.JSON(http.StatusOK, resp)
}

// Clear removes one cursor when source and scope are given, otherwise all.
func (h *CursorHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()
	source, scope := c.Query("source"), c.Query("scope")

	if source == "" && scope == "" {
		if err := h.cursors.ClearAll(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to clear cursors", "error", err)
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to clear cursors"})
			return
		}
		slog.InfoContext(ctx, "all cursors cleared")
		c.JSON(http.StatusOK, dto.ClearCursorsResponse{Cleared: "all"})
		return
	}
	if source == "" || scope == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "source and scope must be given together"})
		return
	}

	key := cursor.Key{Source: source, Scope: scope}
	if err := h.cursors.Clear(ctx, key); err != nil {
		slog.ErrorContext(ctx, "failed to clear cursor", "cursor", key.String(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to clear cursor"})
		return
	}
	slog.InfoContext(ctx, "cursor cleared", "cursor", key.String())
	c.JSON(http.StatusOK, dto.ClearCursorsResponse{Cleared: key.String()})
}
