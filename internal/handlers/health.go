package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// HealthCheck handles the health check endpoint
func HealthCheck(c *cache.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := HealthResponse{
			Status: "ok",
		}
		healthy := true

		// Check database connection
		if database.Pool() != nil {
			if err := database.Status(ctx.Request.Context()); err != nil {
				response.Database = "disconnected"
				healthy = false
			} else {
				response.Database = "connected"
			}
		} else {
			response.Database = "not configured"
		}

		// Check cache connection
		if c != nil {
			if err := c.Ping(ctx.Request.Context()); err != nil {
				response.Cache = "disconnected"
				healthy = false
			} else {
				response.Cache = "connected"
			}
		} else {
			response.Cache = "not configured"
		}

		if !healthy {
			ctx.JSON(http.StatusServiceUnavailable, response)
			return
		}
		ctx.JSON(http.StatusOK, response)
	}
}
