package orders

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"tradewatch/pkg/response"
)

// GinHandlers contains the HTTP handlers for trailing-stop orders. The
// same handler set serves both kinds; each route binds a Kind.
type GinHandlers struct {
	manager *Manager
}

// NewGinHandlers creates a new set of HTTP handlers backed by the given
// manager.
func NewGinHandlers(manager *Manager) *GinHandlers {
	return &GinHandlers{manager: manager}
}

type createSellOrderRequest struct {
	StockCode       string   `json:"stock_code"`
	MinPrice        float64  `json:"min_price"`
	Quantity        int      `json:"quantity"`
	TrailingAmount  *float64 `json:"trailing_amount"`
	TrailingPercent *float64 `json:"trailing_percent"`
}

type createBuyOrderRequest struct {
	StockCode       string   `json:"stock_code"`
	MaxPrice        float64  `json:"max_price"`
	Quantity        int      `json:"quantity"`
	TrailingAmount  *float64 `json:"trailing_amount"`
	TrailingPercent *float64 `json:"trailing_percent"`
}

type updateSellOrderRequest struct {
	MinPrice        *float64 `json:"min_price"`
	Quantity        *int     `json:"quantity"`
	TrailingAmount  *float64 `json:"trailing_amount"`
	TrailingPercent *float64 `json:"trailing_percent"`
}

type updateBuyOrderRequest struct {
	MaxPrice        *float64 `json:"max_price"`
	Quantity        *int     `json:"quantity"`
	TrailingAmount  *float64 `json:"trailing_amount"`
	TrailingPercent *float64 `json:"trailing_percent"`
}

// CreateSellOrderHandler handles POST requests to open a trailing-stop
// sell order. Field validation happens in the order constructor so the
// API and any other entry point agree on the rules.
func (h *GinHandlers) CreateSellOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSellOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := NewSellOrder(req.StockCode, req.MinPrice, req.Quantity, req.TrailingAmount, req.TrailingPercent)
		if err != nil {
			respondOrderError(c, err)
			return
		}

		accepted, err := h.manager.AddOrder(c.Request.Context(), order)
		if err != nil {
			respondOrderError(c, err)
			return
		}

		response.Success(c, orderBody(accepted))
	}
}

// CreateBuyOrderHandler handles POST requests to open a trailing-stop
// buy order.
func (h *GinHandlers) CreateBuyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBuyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := NewBuyOrder(req.StockCode, req.MaxPrice, req.Quantity, req.TrailingAmount, req.TrailingPercent)
		if err != nil {
			respondOrderError(c, err)
			return
		}

		accepted, err := h.manager.AddOrder(c.Request.Context(), order)
		if err != nil {
			respondOrderError(c, err)
			return
		}

		response.Success(c, orderBody(accepted))
	}
}

// ListSellOrdersHandler handles GET requests for the sell-order
// collection, optionally filtered with ?status=.
func (h *GinHandlers) ListSellOrdersHandler() gin.HandlerFunc {
	return h.listOrders(KindSell)
}

// ListBuyOrdersHandler handles GET requests for the buy-order collection.
func (h *GinHandlers) ListBuyOrdersHandler() gin.HandlerFunc {
	return h.listOrders(KindBuy)
}

// GetSellOrderHandler handles GET requests for a single sell order.
// URL parameter: order_id
func (h *GinHandlers) GetSellOrderHandler() gin.HandlerFunc {
	return h.getOrder(KindSell)
}

// GetBuyOrderHandler handles GET requests for a single buy order.
func (h *GinHandlers) GetBuyOrderHandler() gin.HandlerFunc {
	return h.getOrder(KindBuy)
}

// UpdateSellOrderHandler handles PATCH requests against a waiting sell
// order.
func (h *GinHandlers) UpdateSellOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("order_id")
		if _, ok := h.findKind(c, id, KindSell); !ok {
			return
		}

		var req updateSellOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		updated, err := h.manager.UpdateOrder(id, OrderUpdate{
			ThresholdPrice:  req.MinPrice,
			Quantity:        req.Quantity,
			TrailingAmount:  req.TrailingAmount,
			TrailingPercent: req.TrailingPercent,
		})
		if err != nil {
			respondOrderError(c, err)
			return
		}
		response.Success(c, orderBody(updated))
	}
}

// UpdateBuyOrderHandler handles PATCH requests against a waiting buy
// order.
func (h *GinHandlers) UpdateBuyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("order_id")
		if _, ok := h.findKind(c, id, KindBuy); !ok {
			return
		}

		var req updateBuyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		updated, err := h.manager.UpdateOrder(id, OrderUpdate{
			ThresholdPrice:  req.MaxPrice,
			Quantity:        req.Quantity,
			TrailingAmount:  req.TrailingAmount,
			TrailingPercent: req.TrailingPercent,
		})
		if err != nil {
			respondOrderError(c, err)
			return
		}
		response.Success(c, orderBody(updated))
	}
}

// CancelSellOrderHandler handles DELETE requests for a waiting sell
// order. Cancellation answers 204; the order stays on file as history.
func (h *GinHandlers) CancelSellOrderHandler() gin.HandlerFunc {
	return h.cancelOrder(KindSell)
}

// CancelBuyOrderHandler handles DELETE requests for a waiting buy order.
func (h *GinHandlers) CancelBuyOrderHandler() gin.HandlerFunc {
	return h.cancelOrder(KindBuy)
}

func (h *GinHandlers) listOrders(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter Status
		if raw := c.Query("status"); raw != "" {
			filter = Status(raw)
			if !filter.valid() {
				response.BadRequest(c, fmt.Sprintf("unknown status %q", raw))
				return
			}
		}

		all := h.manager.OrdersByKind(kind)
		bodies := make([]map[string]interface{}, 0, len(all))
		for _, o := range all {
			if filter != "" && o.GetStatus() != filter {
				continue
			}
			bodies = append(bodies, orderBody(o))
		}
		response.Success(c, bodies)
	}
}

func (h *GinHandlers) getOrder(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.findKind(c, c.Param("order_id"), kind)
		if !ok {
			return
		}
		response.Success(c, orderBody(o))
	}
}

func (h *GinHandlers) cancelOrder(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("order_id")
		if _, ok := h.findKind(c, id, kind); !ok {
			return
		}
		if err := h.manager.CancelOrder(id); err != nil {
			respondOrderError(c, err)
			return
		}
		response.NoContent(c)
	}
}

// findKind resolves an order and hides kind mismatches as 404 so sell
// routes can never read or mutate buy orders and vice versa.
func (h *GinHandlers) findKind(c *gin.Context, id string, kind Kind) (Order, bool) {
	o, err := h.manager.Get(id)
	if err != nil || o.Kind() != kind {
		response.NotFound(c, "Order not found")
		return nil, false
	}
	return o, true
}

// orderBody flattens an order into its wire form and adds the derived
// trigger level, which is nil until a first price has been observed.
func orderBody(o Order) map[string]interface{} {
	raw, err := json.Marshal(o)
	if err != nil {
		return map[string]interface{}{"id": o.GetID()}
	}
	body := map[string]interface{}{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]interface{}{"id": o.GetID()}
	}
	if trigger, ok := o.TriggerPrice(); ok {
		body["trigger_price"] = trigger
	} else {
		body["trigger_price"] = nil
	}
	return body
}

// respondOrderError maps the package's error types onto the response
// envelope.
func respondOrderError(c *gin.Context, err error) {
	var validation *ValidationError
	var insufficient *InsufficientPositionError
	var invalidState *InvalidStateError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		response.NotFound(c, "Order not found")
	case errors.As(err, &validation):
		response.ValidationFailed(c, err.Error())
	case errors.As(err, &insufficient):
		response.BadRequest(c, err.Error())
	case errors.As(err, &invalidState):
		response.InvalidState(c, err.Error())
	case errors.Is(err, ErrPositionsUnavailable):
		response.InternalError(c, err.Error())
	default:
		response.InternalError(c, "An unexpected error occurred")
	}
}
