package router

import (
	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/http/handler"
	"synapse.app/ingest/internal/metrics"
	"synapse.app/ingest/internal/service"
)

type RouterConfig struct {
	TraceHeader    string
	EnableTestData bool
}

// SetupRoutes mounts the ingestion API.
func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", handler.Health("Ingestion API is healthy"))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		ingestHandler := handler.NewEventIngestHandler(services.Ingest(), cfg.TraceHeader)
		EventRouter(v1, ingestHandler)

		if cfg.EnableTestData {
			testDataHandler := handler.NewTestDataHandler(services.TestData())
			TestDataRouter(v1.Group("/test"), testDataHandler)
		}
	}
}
