package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tradewatch/internal/broker"
	"tradewatch/internal/orders"
	"tradewatch/internal/quote"
)

const tradingPassword = "sim-password"

// init configures the logger for the simulation with pretty printing and
// timestamps.
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// scenario walks one trailing order through a scripted price path, one
// step per manager cycle. Orders whose walk ends early keep their last
// price for the remaining cycles.
type scenario struct {
	name      string
	stockCode string
	order     orders.Order
	walk      []float64
	orderID   string
}

// memoryRecorder collects execution records for the final report.
type memoryRecorder struct {
	mu      sync.Mutex
	records []orders.ExecutionRecord
}

func (r *memoryRecorder) RecordExecution(record orders.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRecorder) all() []orders.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]orders.ExecutionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// main drives the full trigger/execute path against the simulated
// brokerage: seeded positions, scripted price walks, a real manager over
// a temp store, and a printed outcome report.
func main() {
	ctx := context.Background()

	sim := broker.NewSimulator(broker.SimulatorConfig{
		TradingPassword: tradingPassword,
		Positions: []broker.Position{
			{StockCode: "US.ASTS", Quantity: 200, SellableQty: 200, CostPrice: 40, Price: 50},
			{StockCode: "US.MSFT", Quantity: 50, SellableQty: 50, CostPrice: 300, Price: 400},
			{StockCode: "US.KULR", Quantity: 500, SellableQty: 500, CostPrice: 2.0, Price: 1.80},
		},
		Quotes: map[string]float64{
			"NVDA": 185,
			"AMD":  110,
		},
	})

	// Zero cache TTL so every cycle sees the freshly scripted price.
	quotes := quote.NewService(sim, 0, 6000)

	dir, err := os.MkdirTemp("", "tradewatch-sim-")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create temp store directory")
	}
	defer os.RemoveAll(dir)

	recorder := &memoryRecorder{}
	policies := orders.DefaultPolicies(sim, quotes, tradingPassword)
	manager, err := orders.NewManager(
		orders.NewFileStore(filepath.Join(dir, "orders.json")),
		policies,
		sim,
		time.Second,
		10*time.Second,
		recorder,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order manager")
	}

	scenarios := buildScenarios()
	for i := range scenarios {
		accepted, err := manager.AddOrder(ctx, scenarios[i].order)
		if err != nil {
			log.Fatal().Err(err).Str("scenario", scenarios[i].name).Msg("Failed to open order")
		}
		scenarios[i].orderID = accepted.GetID()
		log.Info().
			Str("scenario", scenarios[i].name).
			Str("order_id", accepted.GetID()).
			Str("stock_code", accepted.GetStockCode()).
			Str("kind", string(accepted.Kind())).
			Msg("Order opened")
	}

	steps := 0
	for _, sc := range scenarios {
		if len(sc.walk) > steps {
			steps = len(sc.walk)
		}
	}

	for step := 0; step < steps; step++ {
		for _, sc := range scenarios {
			if step < len(sc.walk) {
				setPrice(sim, sc.stockCode, sc.walk[step])
			}
		}
		manager.RunCycle(ctx)
		log.Info().Int("cycle", step+1).Msg("Cycle complete")
	}

	printSummary(ctx, manager, scenarios, recorder, sim)
}

// buildScenarios covers the trigger contract from both sides: a sell
// that fires on a retreat from the high, a sell that only rises, a sell
// blocked by its floor, a buy that fires on a bounce off the low, and a
// buy blocked by its ceiling.
func buildScenarios() []scenario {
	sellASTS, err := orders.NewSellOrder("US.ASTS", 35, 100, floatPtr(5), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("bad scenario order")
	}
	sellMSFT, err := orders.NewSellOrder("US.MSFT", 350, 50, nil, floatPtr(5))
	if err != nil {
		log.Fatal().Err(err).Msg("bad scenario order")
	}
	sellKULR, err := orders.NewSellOrder("US.KULR", 1.75, 500, floatPtr(0.15), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("bad scenario order")
	}
	buyNVDA, err := orders.NewBuyOrder("US.NVDA", 190, 10, nil, floatPtr(3))
	if err != nil {
		log.Fatal().Err(err).Msg("bad scenario order")
	}
	buyAMD, err := orders.NewBuyOrder("US.AMD", 100, 10, floatPtr(5), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("bad scenario order")
	}

	return []scenario{
		{
			name:      "sell fires after retreat from high",
			stockCode: "US.ASTS",
			order:     sellASTS,
			walk:      []float64{50, 54, 58, 56, 53},
		},
		{
			name:      "sell keeps riding a rising price",
			stockCode: "US.MSFT",
			order:     sellMSFT,
			walk:      []float64{400, 410, 415, 400},
		},
		{
			name:      "sell held back by its price floor",
			stockCode: "US.KULR",
			order:     sellKULR,
			walk:      []float64{1.80, 1.60, 1.50},
		},
		{
			name:      "buy fires on bounce off the low",
			stockCode: "US.NVDA",
			order:     buyNVDA,
			walk:      []float64{185, 180, 176, 180},
		},
		{
			name:      "buy held back by its price ceiling",
			stockCode: "US.AMD",
			order:     buyAMD,
			walk:      []float64{110, 115, 120},
		},
	}
}

// setPrice scripts both the brokerage position price and the latest-trade
// quote, so the step is visible through whichever path the order reads.
func setPrice(sim *broker.Simulator, stockCode string, price float64) {
	sim.SetPositionPrice(stockCode, price)
	sim.SetQuote(strings.TrimPrefix(stockCode, "US."), price)
}

// printSummary reports per-order outcomes, the execution audit trail and
// the final simulated book.
func printSummary(ctx context.Context, manager *orders.Manager, scenarios []scenario, recorder *memoryRecorder, sim *broker.Simulator) {
	fmt.Println("\n" + strings.Repeat("=", 94))
	fmt.Println("TRAILING ORDER SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 94))

	statusCounts := make(map[orders.Status]int)

	fmt.Println("\nOrder Outcomes")
	fmt.Println(strings.Repeat("-", 94))
	fmt.Printf("%-38s %-9s %-5s %-10s %10s %12s\n",
		"Scenario", "Stock", "Kind", "Status", "Trigger", "Last Price")
	for _, sc := range scenarios {
		o, err := manager.Get(sc.orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", sc.orderID).Msg("order missing from manager")
			continue
		}
		statusCounts[o.GetStatus()]++

		trigger := "-"
		if tp, ok := o.TriggerPrice(); ok {
			trigger = fmt.Sprintf("%.2f", tp)
		}
		fmt.Printf("%-38s %-9s %-5s %-10s %10s %12s\n",
			sc.name,
			o.GetStockCode(),
			string(o.Kind()),
			string(o.GetStatus()),
			trigger,
			lastCheckedPrice(o))
	}

	fmt.Println("\nExecutions")
	fmt.Println(strings.Repeat("-", 94))
	records := recorder.all()
	if len(records) == 0 {
		fmt.Println("(none)")
	}
	for _, rec := range records {
		line := fmt.Sprintf("%-5s %4d %-9s @ %8.2f   %s", rec.Kind, rec.Quantity, rec.StockCode, rec.Price, rec.Status)
		if rec.BrokerRef != "" {
			line += "   ref " + rec.BrokerRef
		}
		if rec.Detail != "" {
			line += "   " + rec.Detail
		}
		fmt.Println(line)
	}

	fmt.Println("\nFinal Positions")
	fmt.Println(strings.Repeat("-", 94))
	positions, err := sim.Positions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read final positions")
	}
	for _, p := range positions {
		fmt.Printf("%-9s qty %8.1f   price %8.2f   value %12.2f\n",
			p.StockCode, p.Quantity, p.Price, p.MarketValue)
	}

	fmt.Println("\n" + strings.Repeat("=", 94))

	log.Info().
		Int("orders", len(scenarios)).
		Int("completed", statusCounts[orders.StatusCompleted]).
		Int("waiting", statusCounts[orders.StatusWaiting]).
		Int("error", statusCounts[orders.StatusError]).
		Int("executions", len(records)).
		Msg("Simulation completed")
}

// lastCheckedPrice formats the order's most recent observation.
func lastCheckedPrice(o orders.Order) string {
	var p *float64
	switch v := o.(type) {
	case *orders.SellOrder:
		p = v.LastCheckedPrice
	case *orders.BuyOrder:
		p = v.LastCheckedPrice
	}
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func floatPtr(v float64) *float64 { return &v }
