package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health answers liveness probes with a plain-text message.
func Health(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, message)
	}
}
