package execlog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradewatch/internal/orders"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}))
	return NewService(NewDatabase(db))
}

func record(orderID, stockCode string, kind orders.Kind, price float64, at time.Time) orders.ExecutionRecord {
	return orders.ExecutionRecord{
		OrderID:    orderID,
		BrokerRef:  "REF-" + orderID,
		StockCode:  stockCode,
		Kind:       kind,
		Quantity:   10,
		Price:      price,
		Status:     orders.ExecutionCompleted,
		ExecutedAt: at,
	}
}

func TestRecordExecutionRoundTrip(t *testing.T) {
	service := testService(t)
	executedAt := time.Date(2025, 8, 20, 14, 30, 0, 0, time.UTC)

	require.NoError(t, service.RecordExecution(record("order-1", "US.AAPL", orders.KindSell, 161.5, executedAt)))

	records, err := service.List("", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.NotEmpty(t, got.ExecutionID)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, "REF-order-1", got.BrokerRef)
	assert.Equal(t, "US.AAPL", got.StockCode)
	assert.Equal(t, "sell", got.Side)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 10, got.Quantity)
	assert.Equal(t, 161.5, got.Price)
	assert.True(t, got.ExecutedAt.Equal(executedAt))
}

func TestRecordExecutionFailedAttempt(t *testing.T) {
	service := testService(t)

	failed := orders.ExecutionRecord{
		OrderID:    "order-9",
		StockCode:  "US.TSLA",
		Kind:       orders.KindBuy,
		Quantity:   4,
		Price:      250,
		Status:     orders.ExecutionFailed,
		Detail:     "exchange rejected order",
		ExecutedAt: time.Now(),
	}
	require.NoError(t, service.RecordExecution(failed))

	records, err := service.List("US.TSLA", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "failed", records[0].Status)
	assert.Equal(t, "exchange rejected order", records[0].Detail)
	assert.Empty(t, records[0].BrokerRef)
}

func TestListFiltersAndOrders(t *testing.T) {
	service := testService(t)
	base := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, service.RecordExecution(record("order-1", "US.AAPL", orders.KindSell, 150, base)))
	require.NoError(t, service.RecordExecution(record("order-2", "US.PLTR", orders.KindBuy, 42, base.Add(time.Hour))))
	require.NoError(t, service.RecordExecution(record("order-3", "US.AAPL", orders.KindSell, 155, base.Add(2*time.Hour))))

	all, err := service.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "order-3", all[0].OrderID, "newest execution first")

	apple, err := service.List("US.AAPL", 0)
	require.NoError(t, err)
	require.Len(t, apple, 2)
	for _, r := range apple {
		assert.Equal(t, "US.AAPL", r.StockCode)
	}

	limited, err := service.List("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListExecutionsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := testService(t)
	require.NoError(t, service.RecordExecution(record("order-1", "US.AAPL", orders.KindSell, 150, time.Now())))

	router := gin.New()
	router.GET("/api/v1/executions", NewGinHandlers(service).ListExecutionsHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions?stock_code=US.AAPL", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Success bool     `json:"success"`
		Data    []Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "order-1", envelope.Data[0].OrderID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/executions?limit=abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
