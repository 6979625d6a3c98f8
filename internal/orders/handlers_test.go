package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewatch/internal/broker"
	"tradewatch/pkg/response"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupOrdersAPI(t *testing.T, fb *fakeBroker) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "orders.json")
	m, err := NewManager(NewFileStore(path), DefaultPolicies(fb, &fakeQuotes{price: 50}, ""), fb, time.Minute, 30*time.Second, nil)
	require.NoError(t, err)

	h := NewGinHandlers(m)
	router := gin.New()
	v1 := router.Group("/api/v1")

	sell := v1.Group("/sell_orders")
	{
		sell.POST("", h.CreateSellOrderHandler())
		sell.GET("", h.ListSellOrdersHandler())
		sell.GET("/:order_id", h.GetSellOrderHandler())
		sell.PATCH("/:order_id", h.UpdateSellOrderHandler())
		sell.DELETE("/:order_id", h.CancelSellOrderHandler())
	}
	buy := v1.Group("/buy_orders")
	{
		buy.POST("", h.CreateBuyOrderHandler())
		buy.GET("", h.ListBuyOrdersHandler())
		buy.GET("/:order_id", h.GetBuyOrderHandler())
		buy.PATCH("/:order_id", h.UpdateBuyOrderHandler())
		buy.DELETE("/:order_id", h.CancelBuyOrderHandler())
	}

	return router, m
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env apiEnvelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func dataAsMap(t *testing.T, env apiEnvelope) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func appleBroker() *fakeBroker {
	return &fakeBroker{positions: []broker.Position{
		{StockCode: "US.AAPL", SellableQty: 50, Price: 160},
	}}
}

func TestCreateSellOrderEndpoint(t *testing.T) {
	router, _ := setupOrdersAPI(t, appleBroker())

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/sell_orders", gin.H{
		"stock_code":       "US.AAPL",
		"min_price":        150,
		"quantity":         10,
		"trailing_percent": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, env.Success)

	body := dataAsMap(t, env)
	assert.Equal(t, "US.AAPL", body["stock_code"])
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, float64(10), body["quantity"])
	assert.Equal(t, float64(150), body["min_price"])
	assert.NotEmpty(t, body["id"])
	assert.Nil(t, body["trigger_price"], "trigger is unknown before the first check")
}

func TestCreateSellOrderRejectsBadInput(t *testing.T) {
	router, _ := setupOrdersAPI(t, appleBroker())

	tests := []struct {
		name     string
		body     gin.H
		wantCode string
	}{
		{
			name: "both trailing fields",
			body: gin.H{
				"stock_code":       "US.AAPL",
				"min_price":        150,
				"quantity":         10,
				"trailing_amount":  5,
				"trailing_percent": 5,
			},
			wantCode: response.ErrCodeValidationFailed,
		},
		{
			name: "no trailing field",
			body: gin.H{
				"stock_code": "US.AAPL",
				"min_price":  150,
				"quantity":   10,
			},
			wantCode: response.ErrCodeValidationFailed,
		},
		{
			name: "insufficient position",
			body: gin.H{
				"stock_code":       "US.AAPL",
				"min_price":        150,
				"quantity":         500,
				"trailing_percent": 5,
			},
			wantCode: response.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, router, http.MethodPost, "/api/v1/sell_orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestCreateSellOrderRejectsMalformedJSON(t *testing.T) {
	router, _ := setupOrdersAPI(t, appleBroker())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sell_orders", bytes.NewBufferString("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBuyOrderEndpoint(t *testing.T) {
	router, _ := setupOrdersAPI(t, &fakeBroker{})

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/buy_orders", gin.H{
		"stock_code":      "US.PLTR",
		"max_price":       60,
		"quantity":        5,
		"trailing_amount": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, env.Success)

	body := dataAsMap(t, env)
	assert.Equal(t, "US.PLTR", body["stock_code"])
	assert.Equal(t, float64(60), body["max_price"])
	assert.Equal(t, "waiting", body["status"])
}

func TestListOrdersEndpoint(t *testing.T) {
	router, m := setupOrdersAPI(t, appleBroker())

	first, _ := NewSellOrder("US.AAPL", 150, 10, nil, fptr(5))
	second, _ := NewSellOrder("US.AAPL", 140, 5, fptr(4), nil)
	_, err := m.AddOrder(context.Background(), first)
	require.NoError(t, err)
	_, err = m.AddOrder(context.Background(), second)
	require.NoError(t, err)
	require.NoError(t, m.CancelOrder(second.GetID()))

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/sell_orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/sell_orders?status=waiting", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var waiting []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &waiting))
	require.Len(t, waiting, 1)
	assert.Equal(t, first.GetID(), waiting[0]["id"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sell_orders?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/buy_orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var buys []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &buys))
	assert.Empty(t, buys, "sell orders must not leak into the buy listing")
}

func TestGetOrderEndpoint(t *testing.T) {
	router, m := setupOrdersAPI(t, appleBroker())

	order, _ := NewSellOrder("US.AAPL", 150, 10, nil, fptr(5))
	_, err := m.AddOrder(context.Background(), order)
	require.NoError(t, err)

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/sell_orders/"+order.GetID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := dataAsMap(t, env)
	assert.Equal(t, order.GetID(), body["id"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sell_orders/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A sell order is invisible through the buy routes.
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/buy_orders/"+order.GetID(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderReportsTriggerPriceAfterCheck(t *testing.T) {
	fb := appleBroker()
	router, m := setupOrdersAPI(t, fb)

	order, _ := NewSellOrder("US.AAPL", 100, 10, nil, fptr(5))
	_, err := m.AddOrder(context.Background(), order)
	require.NoError(t, err)

	m.RunCycle(context.Background())

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/sell_orders/"+order.GetID(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := dataAsMap(t, env)
	assert.Equal(t, float64(152), body["trigger_price"])
	assert.Equal(t, float64(160), body["last_checked_price"])
	assert.Equal(t, "waiting", body["status"])
}

func TestUpdateOrderEndpoint(t *testing.T) {
	router, m := setupOrdersAPI(t, appleBroker())

	order, _ := NewSellOrder("US.AAPL", 150, 10, nil, fptr(5))
	_, err := m.AddOrder(context.Background(), order)
	require.NoError(t, err)

	w, env := doJSON(t, router, http.MethodPatch, "/api/v1/sell_orders/"+order.GetID(), gin.H{
		"min_price": 155,
		"quantity":  12,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := dataAsMap(t, env)
	assert.Equal(t, float64(155), body["min_price"])
	assert.Equal(t, float64(12), body["quantity"])

	w, env = doJSON(t, router, http.MethodPatch, "/api/v1/sell_orders/"+order.GetID(), gin.H{
		"quantity": -3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrCodeValidationFailed, env.Error.Code)

	require.NoError(t, m.CancelOrder(order.GetID()))
	w, env = doJSON(t, router, http.MethodPatch, "/api/v1/sell_orders/"+order.GetID(), gin.H{
		"quantity": 5,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrCodeInvalidState, env.Error.Code)
}

func TestCancelOrderEndpoint(t *testing.T) {
	router, m := setupOrdersAPI(t, appleBroker())

	order, _ := NewSellOrder("US.AAPL", 150, 10, nil, fptr(5))
	_, err := m.AddOrder(context.Background(), order)
	require.NoError(t, err)

	w, _ := doJSON(t, router, http.MethodDelete, "/api/v1/sell_orders/"+order.GetID(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len(), "204 must carry no body")

	got, err := m.Get(order.GetID())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.GetStatus())

	w, env := doJSON(t, router, http.MethodDelete, "/api/v1/sell_orders/"+order.GetID(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrCodeInvalidState, env.Error.Code)

	w, _ = doJSON(t, router, http.MethodDelete, "/api/v1/sell_orders/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
