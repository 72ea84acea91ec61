package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/consumer"
	"github.com/kosarica/feed-service/internal/database"
)

// PostEventRequest represents one interaction event submission
type PostEventRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId" binding:"required"`
	ProductID string `json:"productId" binding:"required"`
	Type      string `json:"type" binding:"required"`
}

// PostEvent enqueues an interaction event for asynchronous processing
// POST /events
func PostEvent(c *cache.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req PostEventRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !database.InteractionType(req.Type).Valid() {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
			return
		}

		payload, err := json.Marshal(consumer.Event{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			ProductID: req.ProductID,
			Type:      req.Type,
		})
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode event"})
			return
		}

		if err := c.PushEvent(ctx.Request.Context(), payload); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event queue unavailable"})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
