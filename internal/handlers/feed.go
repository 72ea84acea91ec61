package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/feed-service/internal/ranker"
)

// GetFeedRequest represents query parameters for the feed endpoint
type GetFeedRequest struct {
	UserID     string `form:"userId"`
	SessionID  string `form:"sessionId"`
	SearchText string `form:"searchText"`
	CategoryID string `form:"productCategoryId"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetFeed returns a ranked feed page
// GET /feed?userId=&sessionId=&searchText=&productCategoryId=&cursor=&limit=30
func GetFeed(r *ranker.Ranker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GetFeedRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := r.Rank(c.Request.Context(), ranker.Request{
			UserID:     req.UserID,
			SessionID:  req.SessionID,
			SearchText: req.SearchText,
			CategoryID: req.CategoryID,
			Cursor:     req.Cursor,
			Limit:      req.Limit,
		})

		c.JSON(http.StatusOK, resp)
	}
}
