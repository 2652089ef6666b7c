package router

import (
	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/http/handler"
	"synapse.app/ingest/internal/metrics"
)

// SetupConnectorRoutes mounts the operator API of the sync connector. The
// GitHub analysis routes are mounted only with a non-nil analyzer.
func SetupConnectorRoutes(router *gin.Engine, runner handler.SyncRunner, cursors handler.CursorAdmin, analyzer handler.RepositoryAnalyzer) {
	router.GET("/health", handler.Health("Connector is healthy"))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		syncHandler := handler.NewSyncHandler(runner)
		v1.POST("/sync", syncHandler.SyncAll)
		v1.POST("/sync/:adapter", syncHandler.SyncAdapter)

		cursorHandler := handler.NewCursorHandler(cursors)
		v1.GET("/cursors", cursorHandler.Get)
		v1.DELETE("/cursors", cursorHandler.Clear)

		if analyzer != nil {
			analysisHandler := handler.NewAnalysisHandler(analyzer)
			v1.GET("/github/analyze/:name", analysisHandler.Analyze)
			v1.GET("/github/analyze/:name/:repo", analysisHandler.Analyze)
		}
	}
}
