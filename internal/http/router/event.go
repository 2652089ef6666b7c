package router

import (
	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/http/handler"
)

func EventRouter(router *gin.RouterGroup, h *handler.EventIngestHandler) {
	router.POST("/ingest", h.Ingest)
	router.GET("/schema/event", handler.EventSchemaHandler)
}

func TestDataRouter(router *gin.RouterGroup, h *handler.TestDataHandler) {
	router.POST("/generate-data", h.Generate)
}
