package portfolio

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"tradewatch/pkg/response"
)

// GinHandlers contains HTTP handlers for portfolio queries.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for portfolio
// queries.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetPositionsHandler handles GET requests for the account's open
// positions.
func (h *GinHandlers) GetPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := h.service.Positions(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("operation", "get_positions").Msg("positions fetch failed")
			response.InternalError(c, "Failed to fetch positions")
			return
		}
		response.Success(c, positions)
	}
}

// GetPnLHandler handles GET requests for the reconstructed per-stock
// profit and loss.
func (h *GinHandlers) GetPnLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pnl, err := h.service.ProfitAndLoss(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("operation", "get_pnl").Msg("pnl calculation failed")
			response.InternalError(c, "Failed to calculate profit and loss")
			return
		}
		response.Success(c, pnl)
	}
}
