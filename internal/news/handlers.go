package news

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"tradewatch/pkg/response"
)

// GinHandlers contains HTTP handlers for stored news.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for stored news.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListNewsHandler handles GET requests for stored news items.
// Optional query parameters: source, limit
func (h *GinHandlers) ListNewsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "limit must be an integer")
				return
			}
			limit = parsed
		}

		items, err := h.service.List(c.Query("source"), limit)
		response.Handle(c, items, err)
	}
}

// ListSourcesHandler handles GET requests for the configured feed names.
func (h *GinHandlers) ListSourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{"sources": h.service.Sources()})
	}
}
