package quote

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"tradewatch/pkg/response"
)

// GinHandlers contains the HTTP handlers for price lookups.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for price lookups.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetPriceHandler handles GET requests for the current price of a stock.
// URL parameter: stock_code (exchange-qualified, e.g. US.AAPL)
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stockCode := c.Param("stock_code")

		price, err := h.service.Price(c.Request.Context(), stockCode)
		if err != nil {
			if errors.Is(err, ErrInvalidStockCode) {
				response.BadRequest(c, err.Error())
				return
			}
			log.Error().
				Err(err).
				Str("operation", "get_price").
				Str("stock_code", stockCode).
				Msg("price lookup failed")
			response.InternalError(c, "Failed to fetch price")
			return
		}

		response.Success(c, gin.H{
			"stock_code": stockCode,
			"price":      price,
		})
	}
}
