package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog/log"
)

// SimulatorConfig seeds the simulated brokerage.
type SimulatorConfig struct {
	// TradingPassword gates order placement. Empty means no gate.
	TradingPassword string
	// FailureRate in [0,1] makes that fraction of placements fail.
	FailureRate float64
	// Latency is slept on each placement to mimic the wire.
	Latency   time.Duration
	Seed      int64
	Positions []Position
	// Quotes maps normalized symbols to last-trade prices.
	Quotes map[string]float64
}

// Simulator is an in-memory brokerage for tests and the simulation binary.
// Fills mutate the seeded positions and accumulate order history, so the
// portfolio math can be exercised end to end. It also serves latest-trade
// quotes, standing in for the market-data client.
type Simulator struct {
	mu          sync.Mutex
	password    string
	unlocked    bool
	failureRate float64
	latency     time.Duration
	rng         *rand.Rand
	positions   map[string]Position
	quotes      map[string]float64
	history     []HistoricalOrder
	placed      []MarketOrder
}

// NewSimulator builds a simulator from cfg.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	s := &Simulator{
		password:    cfg.TradingPassword,
		unlocked:    cfg.TradingPassword == "",
		failureRate: cfg.FailureRate,
		latency:     cfg.Latency,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		positions:   make(map[string]Position),
		quotes:      make(map[string]float64),
	}
	for _, p := range cfg.Positions {
		s.positions[p.StockCode] = p
	}
	for symbol, price := range cfg.Quotes {
		s.quotes[symbol] = price
	}
	return s
}

func (s *Simulator) Name() string { return "simulator" }

// Positions returns the current holdings sorted by stock code.
func (s *Simulator) Positions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].StockCode < positions[j].StockCode
	})
	return positions, nil
}

// HistoricalOrders returns every simulated fill so far.
func (s *Simulator) HistoricalOrders(ctx context.Context) ([]HistoricalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]HistoricalOrder, len(s.history))
	copy(history, s.history)
	return history, nil
}

// UnlockTrading validates the password and opens the placement gate.
func (s *Simulator) UnlockTrading(ctx context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.password != "" && password != s.password {
		return fmt.Errorf("unlock failed: invalid trading password")
	}
	s.unlocked = true
	return nil
}

// PlaceMarketOrder fills the order at the current simulated price,
// adjusting positions and history. Placement fails while trading is
// locked, when no price is known, and randomly per the failure rate.
func (s *Simulator) PlaceMarketOrder(ctx context.Context, order MarketOrder) (string, error) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.With().
		Str("broker", s.Name()).
		Str("stock_code", order.StockCode).
		Str("side", string(order.Side)).
		Int("quantity", order.Quantity).
		Logger()

	if !s.unlocked {
		logger.Warn().Msg("order rejected: trading is locked")
		return "", fmt.Errorf("trading is locked")
	}
	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		logger.Warn().Float64("failure_rate", s.failureRate).Msg("order execution failed on simulated exchange")
		return "", fmt.Errorf("execution failed on simulated exchange")
	}

	price, ok := s.priceFor(order.StockCode)
	if !ok {
		return "", fmt.Errorf("no market price for %s", order.StockCode)
	}

	qty := float64(order.Quantity)
	if order.Side == SideSell {
		pos, held := s.positions[order.StockCode]
		if !held || pos.SellableQty < qty {
			return "", fmt.Errorf("insufficient sellable quantity for %s", order.StockCode)
		}
		pos.Quantity -= qty
		pos.SellableQty -= qty
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.CostPrice) * pos.Quantity
		if pos.Quantity <= 0 {
			delete(s.positions, order.StockCode)
		} else {
			s.positions[order.StockCode] = pos
		}
	} else {
		pos, held := s.positions[order.StockCode]
		if !held {
			pos = Position{StockCode: order.StockCode, CostPrice: price}
		} else {
			pos.CostPrice = (pos.CostPrice*pos.Quantity + price*qty) / (pos.Quantity + qty)
		}
		pos.Quantity += qty
		pos.SellableQty += qty
		pos.Price = price
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.CostPrice) * pos.Quantity
		s.positions[order.StockCode] = pos
	}

	s.placed = append(s.placed, order)
	ref := fmt.Sprintf("SIM-%d", len(s.placed))
	s.history = append(s.history, HistoricalOrder{
		OrderID:       ref,
		StockCode:     order.StockCode,
		Side:          order.Side,
		Status:        "filled",
		Quantity:      qty,
		DealtQty:      qty,
		DealtAvgPrice: price,
		Remark:        order.Ref,
		CreatedAt:     time.Now(),
	})

	logger.Info().Str("broker_order_id", ref).Float64("price", price).Msg("order filled on simulated exchange")
	return ref, nil
}

// GetLatestTrade serves scripted quotes in the shape of the market-data
// client, so the simulator can stand behind the quote service.
func (s *Simulator) GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &marketdata.Trade{Price: price, Timestamp: time.Now()}, nil
}

// SetQuote scripts the latest-trade price for a normalized symbol.
func (s *Simulator) SetQuote(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = price
}

// SetPositionPrice moves the market price of a held position.
func (s *Simulator) SetPositionPrice(stockCode string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[stockCode]
	if !ok {
		return
	}
	pos.Price = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = (price - pos.CostPrice) * pos.Quantity
	s.positions[stockCode] = pos
}

// SeedPosition adds or replaces a holding.
func (s *Simulator) SeedPosition(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.StockCode] = p
}

// PlacedOrders returns every order that reached the exchange.
func (s *Simulator) PlacedOrders() []MarketOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	placed := make([]MarketOrder, len(s.placed))
	copy(placed, s.placed)
	return placed
}

func (s *Simulator) priceFor(stockCode string) (float64, bool) {
	if pos, ok := s.positions[stockCode]; ok && pos.Price > 0 {
		return pos.Price, true
	}
	if price, ok := s.quotes[stockCode]; ok {
		return price, true
	}
	// Stock codes may carry a market prefix while quotes are keyed bare.
	if trimmed, ok := strings.CutPrefix(stockCode, "US."); ok {
		if price, found := s.quotes[trimmed]; found {
			return price, true
		}
	}
	return 0, false
}
