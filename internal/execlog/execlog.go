// Package execlog keeps the durable record of every order the service
// executed, separate from the order file so history survives order
// cleanup.
package execlog

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/orders"
	"tradewatch/pkg/response"
)

// Service writes and reads execution records.
type Service struct {
	db *Database
}

// NewService creates a new execution log service.
func NewService(db *Database) *Service {
	return &Service{db: db}
}

// RecordExecution persists one executed order. It satisfies the recorder
// hook the order manager calls after a successful fill.
func (s *Service) RecordExecution(record orders.ExecutionRecord) error {
	rec := &Record{
		ExecutionID: uuid.New().String(),
		OrderID:     record.OrderID,
		BrokerRef:   record.BrokerRef,
		StockCode:   record.StockCode,
		Side:        string(record.Kind),
		Status:      record.Status,
		Detail:      record.Detail,
		Quantity:    record.Quantity,
		Price:       record.Price,
		ExecutedAt:  record.ExecutedAt,
	}
	if err := s.db.CreateRecord(rec); err != nil {
		return err
	}

	log.Info().
		Str("service", "execlog").
		Str("execution_id", rec.ExecutionID).
		Str("order_id", rec.OrderID).
		Str("stock_code", rec.StockCode).
		Str("side", rec.Side).
		Str("status", rec.Status).
		Float64("price", rec.Price).
		Msg("execution recorded")
	return nil
}

// List returns recent executions, newest first.
func (s *Service) List(stockCode string, limit int) ([]Record, error) {
	return s.db.ListRecords(stockCode, limit)
}

// GinHandlers contains HTTP handlers for the execution log.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the execution
// log.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListExecutionsHandler handles GET requests for recent executions.
// Optional query parameters: stock_code, limit
func (h *GinHandlers) ListExecutionsHandler() gin.HandlerFunc {
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

		records, err := h.service.List(c.Query("stock_code"), limit)
		response.Handle(c, records, err)
	}
}
