// Package portfolio reports account holdings and reconstructs per-stock
// profit from the brokerage fill history.
package portfolio

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"tradewatch/internal/broker"
)

// PnL is the profit picture for one stock: what the closed fills earned
// plus the value still held.
type PnL struct {
	StockCode   string  `json:"stock_code"`
	TotalBuy    float64 `json:"total_buy"`
	TotalSell   float64 `json:"total_sell"`
	NetQuantity float64 `json:"net_quantity"`
	ClosedPnL   float64 `json:"closed_pnl"`
	OpenValue   float64 `json:"open_value"`
	TotalProfit float64 `json:"total_profit"`
}

// CalculatePnL accumulates every dealt fill per stock code, then adds
// the current value of whatever quantity is still open. The brokerage's
// own position quantity is only consulted to cross-check the
// reconstruction; the fills are the source of truth.
func CalculatePnL(historical []broker.HistoricalOrder, positions []broker.Position) map[string]PnL {
	byCode := make(map[string]*PnL)
	for _, order := range historical {
		if order.DealtQty <= 0 {
			continue
		}
		entry, ok := byCode[order.StockCode]
		if !ok {
			entry = &PnL{StockCode: order.StockCode}
			byCode[order.StockCode] = entry
		}

		value := order.DealtQty * order.DealtAvgPrice
		switch order.Side {
		case broker.SideBuy:
			entry.TotalBuy += value
			entry.NetQuantity += order.DealtQty
		case broker.SideSell:
			entry.TotalSell += value
			entry.NetQuantity -= order.DealtQty
		}
	}

	held := make(map[string]broker.Position, len(positions))
	for _, pos := range positions {
		held[pos.StockCode] = pos
	}

	result := make(map[string]PnL, len(byCode))
	for code, entry := range byCode {
		entry.ClosedPnL = entry.TotalSell - entry.TotalBuy
		if pos, ok := held[code]; ok {
			if entry.NetQuantity != pos.Quantity {
				log.Warn().
					Str("service", "portfolio").
					Str("stock_code", code).
					Float64("reconstructed_qty", entry.NetQuantity).
					Float64("position_qty", pos.Quantity).
					Msg("fill history disagrees with brokerage position")
			}
			entry.OpenValue = entry.NetQuantity * pos.Price
		}
		entry.TotalProfit = entry.ClosedPnL + entry.OpenValue

		entry.TotalBuy = round2(entry.TotalBuy)
		entry.TotalSell = round2(entry.TotalSell)
		entry.ClosedPnL = round2(entry.ClosedPnL)
		entry.OpenValue = round2(entry.OpenValue)
		entry.TotalProfit = round2(entry.TotalProfit)
		result[code] = *entry
	}
	return result
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Service answers portfolio queries against the brokerage account.
type Service struct {
	broker broker.Broker
}

// NewService creates a portfolio service over the given broker.
func NewService(b broker.Broker) *Service {
	return &Service{broker: b}
}

// Positions returns the open holdings.
func (s *Service) Positions(ctx context.Context) ([]broker.Position, error) {
	return s.broker.Positions(ctx)
}

// ProfitAndLoss reconstructs per-stock profit from the account's fill
// history and current holdings.
func (s *Service) ProfitAndLoss(ctx context.Context) (map[string]PnL, error) {
	historical, err := s.broker.HistoricalOrders(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.broker.Positions(ctx)
	if err != nil {
		return nil, err
	}
	return CalculatePnL(historical, positions), nil
}
