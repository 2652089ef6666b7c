package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/http/dto"
	"synapse.app/ingest/internal/metrics"
)

// Recovery turns a handler panic into a 500 JSON error. A panic after the
// response was written only aborts the chain.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			metrics.HTTPPanics.Inc()
			slog.ErrorContext(c.Request.Context(), "handler panicked",
				"panic", fmt.Sprint(r),
				"route", c.FullPath(),
				"method", c.Request.Method,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		}()
		c.Next()
	}
}
